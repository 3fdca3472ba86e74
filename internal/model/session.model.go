package model

import "github.com/google/uuid"

// SystemUserID identifies the fulfillment pipeline in logs and events.
var SystemUserID = uuid.Nil

// Session is the verified caller of a service operation.
type Session struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	System bool      `json:"-"`
}

// SystemSession is used by background jobs that act on behalf of the store.
func SystemSession() Session {
	return Session{UserID: SystemUserID, Role: "service_role", System: true}
}

func (s Session) IsAuthenticated() bool {
	return s.System || s.UserID != uuid.Nil
}
