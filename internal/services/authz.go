package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
)

type RoleChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

func requireUser(session model.Session) error {
	if session.System || session.UserID == uuid.Nil {
		return ErrUnauthenticated
	}
	return nil
}

// requirePrivileged admits the system session and admins.
func requirePrivileged(ctx context.Context, roles RoleChecker, session model.Session) error {
	if !session.IsAuthenticated() {
		return ErrUnauthenticated
	}
	if session.System {
		return nil
	}
	admin, err := roles.IsAdmin(ctx, session.UserID)
	if err != nil {
		return unavailable("check role", err)
	}
	if !admin {
		return ErrForbidden
	}
	return nil
}
