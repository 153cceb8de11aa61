package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/kelurahan-portal/internal/application/dispatcher"
	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/domain/event"
	"github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// ErrInvalidInput marks requests rejected before touching any state
var ErrInvalidInput = errors.New("invalid input")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CreateApplicationInput is a citizen's submission
type CreateApplicationInput struct {
	CitizenID          string                 `json:"citizen_id"`
	ServiceTemplateID  int64                  `json:"service_template_id"`
	FormData           map[string]interface{} `json:"form_data"`
	SubmittedDocuments []int64                `json:"submitted_documents"`
}

// ApplicationService covers submission and the read side of applications.
// Status changes go through the workflow engine.
type ApplicationService interface {
	CreateApplication(ctx context.Context, input CreateApplicationInput) (*entity.Application, error)
	GetApplication(ctx context.Context, id int64) (*entity.Application, error)
	ListApplicationsForUser(ctx context.Context, userID string, limit, offset int) ([]*entity.Application, error)
	GetHistory(ctx context.Context, applicationID int64) ([]*entity.ApplicationHistory, error)
}

type applicationServiceImpl struct {
	applications port.ApplicationRepository
	history      port.HistoryRepository
	users        port.UserDirectory
	templates    port.ServiceTemplateLookup
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       Logger
}

// NewApplicationService creates a new ApplicationService. dispatcher may be nil.
func NewApplicationService(
	applications port.ApplicationRepository,
	history port.HistoryRepository,
	users port.UserDirectory,
	templates port.ServiceTemplateLookup,
	txManager port.TransactionManager,
	dispatcher dispatcher.Dispatcher,
	logger Logger,
) ApplicationService {
	return &applicationServiceImpl{
		applications: applications,
		history:      history,
		users:        users,
		templates:    templates,
		txManager:    txManager,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// CreateApplication stores a new submitted application
func (s *applicationServiceImpl) CreateApplication(ctx context.Context, input CreateApplicationInput) (*entity.Application, error) {
	const op = "create application"

	citizen, err := s.users.GetUser(ctx, input.CitizenID)
	if err != nil {
		return nil, workflow.StorageFailureError(op, err)
	}
	if citizen == nil {
		return nil, workflow.NotFoundError(op, "user %q", input.CitizenID)
	}
	if citizen.Role != workflow.RoleCitizen || !citizen.IsActive {
		return nil, fmt.Errorf("%w: only active citizens can submit applications", ErrInvalidInput)
	}

	tmpl, err := s.templates.GetServiceTemplate(ctx, input.ServiceTemplateID)
	if err != nil {
		return nil, workflow.StorageFailureError(op, err)
	}
	if tmpl == nil {
		return nil, workflow.NotFoundError(op, "service template %d", input.ServiceTemplateID)
	}
	if !tmpl.IsActive {
		return nil, fmt.Errorf("%w: service template %d is not active", ErrInvalidInput, tmpl.ID)
	}

	now := time.Now().UTC()
	app := &entity.Application{
		CitizenID:          citizen.ID,
		ServiceTemplateID:  tmpl.ID,
		Status:             workflow.StateSubmitted,
		FormData:           input.FormData,
		SubmittedDocuments: input.SubmittedDocuments,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if app.FormData == nil {
		app.FormData = map[string]interface{}{}
	}
	if app.SubmittedDocuments == nil {
		app.SubmittedDocuments = []int64{}
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.applications.Create(txCtx, app); err != nil {
			return err
		}
		return s.history.Create(txCtx, &entity.ApplicationHistory{
			ApplicationID: app.ID,
			ActorID:       citizen.ID,
			NewStatus:     workflow.StateSubmitted,
			Timestamp:     now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create application", "citizen_id", citizen.ID, "error", err)
		return nil, workflow.StorageFailureError(op, err)
	}

	s.logger.Info("Application submitted",
		"id", app.ID,
		"citizen_id", citizen.ID,
		"service_type", tmpl.ServiceType,
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeApplicationCreated, app.ID, map[string]interface{}{
			"citizen_id":   citizen.ID,
			"service_type": string(tmpl.ServiceType),
		})
		if err := s.dispatcher.Dispatch(ctx, evt); err != nil {
			s.logger.Error("Failed to dispatch event", "event_type", evt.Type, "error", err)
		}
	}

	return app, nil
}

// GetApplication retrieves an application by ID
func (s *applicationServiceImpl) GetApplication(ctx context.Context, id int64) (*entity.Application, error) {
	app, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return nil, workflow.StorageFailureError("get application", err)
	}
	if app == nil {
		return nil, workflow.NotFoundError("get application", "application %d", id)
	}
	return app, nil
}

// ListApplicationsForUser returns the applications userID works on, scoped by role
func (s *applicationServiceImpl) ListApplicationsForUser(ctx context.Context, userID string, limit, offset int) ([]*entity.Application, error) {
	const op = "list applications"

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, workflow.StorageFailureError(op, err)
	}
	if user == nil || !user.IsActive {
		return []*entity.Application{}, nil
	}

	filter, ok := WorkQueueFilter(user)
	if !ok {
		return []*entity.Application{}, nil
	}
	filter.Limit = limit
	filter.Offset = offset

	apps, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, workflow.StorageFailureError(op, err)
	}
	return apps, nil
}

// GetHistory returns the transition history of an application
func (s *applicationServiceImpl) GetHistory(ctx context.Context, applicationID int64) ([]*entity.ApplicationHistory, error) {
	if _, err := s.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	records, err := s.history.GetByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, workflow.StorageFailureError("get history", err)
	}
	return records, nil
}

// WorkQueueFilter maps a user to the applications their role works on.
// It reports false when the user sees nothing.
func WorkQueueFilter(user *entity.User) (port.ApplicationFilter, bool) {
	switch user.Role {
	case workflow.RoleCitizen:
		return port.ApplicationFilter{CitizenID: user.ID}, true
	case workflow.RoleRTRWHead:
		if user.RT == nil && user.RW == nil {
			return port.ApplicationFilter{}, false
		}
		return port.ApplicationFilter{
			Statuses:   []workflow.State{workflow.StateSubmitted, workflow.StateRTRWReview},
			ReviewedBy: user.ID,
			AreaRT:     user.RT,
			AreaRW:     user.RW,
		}, true
	case workflow.RoleVillageStaff:
		return port.ApplicationFilter{
			Statuses: []workflow.State{workflow.StateRTRWApproved, workflow.StateVillageProcessing},
		}, true
	case workflow.RoleVillageHead:
		return port.ApplicationFilter{
			Statuses: []workflow.State{workflow.StateVillageHeadReview},
		}, true
	default:
		return port.ApplicationFilter{}, false
	}
}
