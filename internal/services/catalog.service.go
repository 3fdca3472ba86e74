package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/pkg/logger"
)

type ServiceRepository interface {
	ListActive(ctx context.Context) ([]*model.Service, error)
	ListAll(ctx context.Context) ([]*model.Service, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
	Create(ctx context.Context, svc *model.Service) (*model.Service, error)
	Update(ctx context.Context, svc *model.Service) (*model.Service, error)
}

type CatalogService struct {
	serviceRepo ServiceRepository
	roles       RoleChecker
}

func NewCatalogService(serviceRepo ServiceRepository, roles RoleChecker) *CatalogService {
	return &CatalogService{
		serviceRepo: serviceRepo,
		roles:       roles,
	}
}

// ListActive is public; anonymous visitors browse the catalog too.
func (s *CatalogService) ListActive(ctx context.Context) ([]*model.Service, error) {
	services, err := s.serviceRepo.ListActive(ctx)
	if err != nil {
		return nil, unavailable("list services", err)
	}
	return services, nil
}

func (s *CatalogService) ListAll(ctx context.Context, session model.Session) ([]*model.Service, error) {
	if err := requirePrivileged(ctx, s.roles, session); err != nil {
		return nil, err
	}
	services, err := s.serviceRepo.ListAll(ctx)
	if err != nil {
		return nil, unavailable("list services", err)
	}
	return services, nil
}

func (s *CatalogService) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	svc, err := s.serviceRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, unavailable("get service", err)
	}
	return svc, nil
}

func (s *CatalogService) Create(ctx context.Context, session model.Session, req model.ServiceUpsertRequest) (*model.Service, error) {
	if err := requirePrivileged(ctx, s.roles, session); err != nil {
		return nil, err
	}
	if problem := req.Problem(); problem != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidService, problem)
	}

	svc := &model.Service{Active: true}
	applyUpsert(svc, req)

	created, err := s.serviceRepo.Create(ctx, svc)
	if err != nil {
		return nil, unavailable("create service", err)
	}
	logger.Info("service created", "service_id", created.ID, "name", created.Name, "by", session.UserID)
	return created, nil
}

func (s *CatalogService) Update(ctx context.Context, session model.Session, id uuid.UUID, req model.ServiceUpsertRequest) (*model.Service, error) {
	if err := requirePrivileged(ctx, s.roles, session); err != nil {
		return nil, err
	}
	if problem := req.Problem(); problem != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidService, problem)
	}

	svc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUpsert(svc, req)

	updated, err := s.serviceRepo.Update(ctx, svc)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, unavailable("update service", err)
	}
	logger.Info("service updated", "service_id", updated.ID, "active", updated.Active, "by", session.UserID)
	return updated, nil
}

func applyUpsert(svc *model.Service, req model.ServiceUpsertRequest) {
	svc.Name = strings.TrimSpace(req.Name)
	svc.Description = req.Description
	svc.Category = strings.TrimSpace(req.Category)
	svc.Price = req.Price
	svc.MinQuantity = req.MinQuantity
	svc.MaxQuantity = req.MaxQuantity
	svc.APIProvider = req.APIProvider
	svc.APIServiceID = req.APIServiceID
	if req.Active != nil {
		svc.Active = *req.Active
	}
}
