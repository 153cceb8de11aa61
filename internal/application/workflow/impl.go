package workflow

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/kelurahan-portal/internal/application/dispatcher"
	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/domain/event"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

const tracerName = "github.com/garyjia/kelurahan-portal/internal/application/workflow"

// Default retry policy for transient failures
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 50 * time.Millisecond
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	applications port.ApplicationRepository
	history      port.HistoryRepository
	users        port.UserDirectory
	templates    port.ServiceTemplateLookup
	numberer     DocumentNumberer
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher

	logger  Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
	now     func() time.Time

	maxAttempts int
	backoff     time.Duration
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events after commit
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *engineImpl) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *engineImpl) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the clock used for audit stamps and updated_at
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithRetry sets the retry policy for transient failures.
// maxAttempts below 1 is treated as 1.
func WithRetry(maxAttempts int, backoff time.Duration) EngineOption {
	return func(e *engineImpl) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		e.maxAttempts = maxAttempts
		e.backoff = backoff
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	applications port.ApplicationRepository,
	history port.HistoryRepository,
	users port.UserDirectory,
	templates port.ServiceTemplateLookup,
	numberer DocumentNumberer,
	txManager port.TransactionManager,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		applications: applications,
		history:      history,
		users:        users,
		templates:    templates,
		numberer:     numberer,
		txManager:    txManager,
		logger:       nopLogger{},
		metrics:      nopMetrics{},
		tracer:       otel.Tracer(tracerName),
		now:          time.Now,
		maxAttempts:  DefaultMaxAttempts,
		backoff:      DefaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// UpdateApplicationStatus implements WorkflowEngine
func (e *engineImpl) UpdateApplicationStatus(
	ctx context.Context,
	applicationID int64,
	target domainwf.State,
	actorID string,
	notes *string,
) (result *entity.Application, err error) {
	const op = "update application status"

	ctx, span := e.tracer.Start(ctx, "workflow.UpdateApplicationStatus", trace.WithAttributes(
		attribute.Int64("application.id", applicationID),
		attribute.String("application.target_status", target.String()),
		attribute.String("actor.id", actorID),
	))
	defer span.End()

	started := e.now()
	var previous domainwf.State
	defer func() {
		e.metrics.ObserveTransition(previous, target, OutcomeOf(err), e.now().Sub(started))
		endSpan(span, err)
	}()

	if !target.IsValid() {
		return nil, domainwf.InvalidTransitionError(op, "unknown target status %q", target)
	}

	actor, err := e.resolveActor(ctx, op, actorID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("actor.role", actor.Role.String()))

	notes = normalizeNotes(notes)

	err = e.withRetry(ctx, op, func(ctx context.Context) error {
		var rendered []port.RenderRequest
		txErr := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			app, err := e.loadForUpdate(txCtx, op, applicationID)
			if err != nil {
				return err
			}
			previous = app.Status

			updated, err := e.transition(txCtx, app, actor, target, notes, &rendered)
			if err != nil {
				return err
			}

			result = updated
			return nil
		})
		if txErr != nil {
			e.discardRendered(ctx, rendered)
		}
		// Begin and commit failures surface untyped
		return domainwf.Classify(op, txErr)
	})
	if err != nil {
		e.logger.Error("Failed to update application status",
			"application_id", applicationID,
			"target", target,
			"actor_id", actorID,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("Application status updated",
		"application_id", applicationID,
		"previous_status", previous,
		"new_status", result.Status,
		"actor_id", actorID,
	)

	e.publishTransition(ctx, previous, result, actorID, notes)
	return result, nil
}

// GenerateApplicationDocument implements WorkflowEngine
func (e *engineImpl) GenerateApplicationDocument(ctx context.Context, applicationID int64) (result *entity.Application, err error) {
	const op = "generate application document"

	ctx, span := e.tracer.Start(ctx, "workflow.GenerateApplicationDocument", trace.WithAttributes(
		attribute.Int64("application.id", applicationID),
	))
	defer span.End()

	started := e.now()
	changed := false
	defer func() {
		outcome := OutcomeOf(err)
		if err == nil && !changed {
			outcome = OutcomeNoop
		}
		e.metrics.ObserveDocument(outcome, e.now().Sub(started))
		endSpan(span, err)
	}()

	err = e.withRetry(ctx, op, func(ctx context.Context) error {
		changed = false
		var rendered []port.RenderRequest
		txErr := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			app, err := e.loadForUpdate(txCtx, op, applicationID)
			if err != nil {
				return err
			}

			if app.Status != domainwf.StateCompleted {
				return domainwf.InvalidTransitionError(op,
					"application %d is %s, documents are generated only for completed applications", app.ID, app.Status)
			}

			updated := app.Clone()
			assigned, err := e.ensureDocument(txCtx, updated, &rendered)
			if err != nil {
				return err
			}
			if !assigned {
				result = app
				return nil
			}

			updated.UpdatedAt = e.now()
			if err := e.applications.UpdateWorkflow(txCtx, updated, app.Status); err != nil {
				return domainwf.Classify(op, err)
			}

			result = updated
			changed = true
			return nil
		})
		if txErr != nil {
			changed = false
			e.discardRendered(ctx, rendered)
		}
		return domainwf.Classify(op, txErr)
	})
	if err != nil {
		e.logger.Error("Failed to generate application document",
			"application_id", applicationID,
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("document.number", derefString(result.DocumentNumber)))

	if changed {
		e.logger.Info("Application document generated",
			"application_id", applicationID,
			"document_number", derefString(result.DocumentNumber),
		)
		e.publish(ctx, event.NewEvent(event.TypeDocumentGenerated, result.ID, map[string]interface{}{
			"document_number": derefString(result.DocumentNumber),
			"document_url":    derefString(result.GeneratedDocumentURL),
		}))
	}

	return result, nil
}

// AvailableTransitions implements WorkflowEngine
func (e *engineImpl) AvailableTransitions(ctx context.Context, applicationID int64, actorID string) ([]domainwf.State, error) {
	const op = "available transitions"

	actor, err := e.resolveActor(ctx, op, actorID)
	if err != nil {
		if domainwf.KindOf(err) == domainwf.KindInvalidTransition {
			return []domainwf.State{}, nil
		}
		return nil, err
	}

	app, err := e.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, domainwf.StorageFailureError(op, err)
	}
	if app == nil {
		return nil, domainwf.NotFoundError(op, "application %d", applicationID)
	}

	machine := BuildApplicationStateMachine(app.Status)
	targets := make([]domainwf.State, 0)
	for _, target := range machine.PermittedTargets(actor.Role) {
		if checkStage(app, target) == nil {
			targets = append(targets, target)
		}
	}
	return targets, nil
}

// transition applies one transition to app inside the current transaction
func (e *engineImpl) transition(
	ctx context.Context,
	app *entity.Application,
	actor *entity.User,
	target domainwf.State,
	notes *string,
	rendered *[]port.RenderRequest,
) (*entity.Application, error) {
	const op = "update application status"

	machine := BuildApplicationStateMachine(app.Status)
	if err := machine.Fire(ctx, actor.Role, target); err != nil {
		return nil, domainwf.InvalidTransitionError(op,
			"%s cannot move application %d from %s to %s: %w", actor.Role, app.ID, app.Status, target, err)
	}

	if err := checkStage(app, target); err != nil {
		return nil, domainwf.InvalidTransitionError(op, "application %d: %w", app.ID, err)
	}

	now := e.now()
	updated := app.Clone()

	audit := updated.Audit(domainwf.ClosedBy(target))
	if audit != nil && !audit.IsStamped() {
		actorID := actor.ID
		stampedAt := now
		audit.ActorID = &actorID
		audit.Notes = notes
		audit.At = &stampedAt
	}

	updated.Status = machine.State()
	updated.UpdatedAt = now

	if target == domainwf.StateCompleted {
		if _, err := e.ensureDocument(ctx, updated, rendered); err != nil {
			return nil, err
		}
	}

	if err := e.applications.UpdateWorkflow(ctx, updated, app.Status); err != nil {
		return nil, domainwf.Classify(op, err)
	}

	history := &entity.ApplicationHistory{
		ApplicationID:  app.ID,
		ActorID:        actor.ID,
		PreviousStatus: app.Status,
		NewStatus:      updated.Status,
		Notes:          notes,
		Timestamp:      now,
	}
	if err := e.history.Create(ctx, history); err != nil {
		return nil, domainwf.StorageFailureError(op, err)
	}

	return updated, nil
}

// ensureDocument resolves the service template lazily and delegates to the
// numberer. Letters it renders are appended to rendered so a rolled back
// transaction can discard them.
func (e *engineImpl) ensureDocument(ctx context.Context, app *entity.Application, rendered *[]port.RenderRequest) (bool, error) {
	const op = "ensure document number"

	if app.DocumentNumber != nil && app.GeneratedDocumentURL != nil {
		return false, nil
	}

	tmpl, err := e.templates.GetServiceTemplate(ctx, app.ServiceTemplateID)
	if err != nil {
		return false, domainwf.StorageFailureError(op, err)
	}
	if tmpl == nil {
		return false, domainwf.NotFoundError(op, "service template %d", app.ServiceTemplateID)
	}

	assigned, err := e.numberer.EnsureDocumentNumber(ctx, app, tmpl)
	if err != nil {
		return false, err
	}
	if assigned {
		*rendered = append(*rendered, port.RenderRequest{
			Application:    app,
			Template:       tmpl,
			DocumentNumber: derefString(app.DocumentNumber),
		})
	}
	return assigned, nil
}

// discardRendered removes letters whose number never committed
func (e *engineImpl) discardRendered(ctx context.Context, rendered []port.RenderRequest) {
	ctx = context.WithoutCancel(ctx)
	for _, req := range rendered {
		if err := e.numberer.DiscardDocument(ctx, req); err != nil {
			e.logger.Error("Failed to discard rendered letter",
				"application_id", req.Application.ID,
				"document_number", req.DocumentNumber,
				"error", err,
			)
		}
	}
}

func (e *engineImpl) resolveActor(ctx context.Context, op, actorID string) (*entity.User, error) {
	actor, err := e.users.GetUser(ctx, actorID)
	if err != nil {
		return nil, domainwf.StorageFailureError(op, err)
	}
	if actor == nil {
		return nil, domainwf.NotFoundError(op, "user %q", actorID)
	}
	if !actor.IsActive {
		return nil, domainwf.InvalidTransitionError(op, "actor %q is inactive", actorID)
	}
	if !actor.Role.IsValid() {
		return nil, domainwf.InvalidTransitionError(op, "actor %q has unknown role %q", actorID, actor.Role)
	}
	return actor, nil
}

func (e *engineImpl) loadForUpdate(ctx context.Context, op string, applicationID int64) (*entity.Application, error) {
	app, err := e.applications.GetByIDForUpdate(ctx, applicationID)
	if err != nil {
		return nil, domainwf.StorageFailureError(op, err)
	}
	if app == nil {
		return nil, domainwf.NotFoundError(op, "application %d", applicationID)
	}
	return app, nil
}

func (e *engineImpl) publishTransition(ctx context.Context, previous domainwf.State, app *entity.Application, actorID string, notes *string) {
	payload := map[string]interface{}{
		"previous_status": previous.String(),
		"new_status":      app.Status.String(),
		"actor_id":        actorID,
	}
	if notes != nil {
		payload["notes"] = *notes
	}
	e.publish(ctx, event.NewEvent(event.TypeStatusChanged, app.ID, payload))

	if app.Status == domainwf.StateCompleted {
		e.publish(ctx, event.NewEvent(event.TypeApplicationCompleted, app.ID, map[string]interface{}{
			"document_number": derefString(app.DocumentNumber),
			"document_url":    derefString(app.GeneratedDocumentURL),
		}))
	}
}

// publish dispatches after commit. Handler failures are logged; the transition stands.
func (e *engineImpl) publish(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, evt); err != nil {
		e.logger.Error("Failed to dispatch event",
			"event_type", evt.Type,
			"application_id", evt.ApplicationID,
			"error", err,
		)
	}
}

// checkStage rejects transitions whose audit triple is already closed. Moving
// from village_processing to village_head_review is the one case where the
// closed staff triple is expected and left as it is.
func checkStage(app *entity.Application, target domainwf.State) error {
	stage := domainwf.ClosedBy(target)
	audit := app.Audit(stage)
	if audit == nil || !audit.IsStamped() {
		return nil
	}
	if stage == domainwf.StageVillageProcessing && app.Status == domainwf.StateVillageProcessing {
		return nil
	}
	return domainwf.InvalidTransitionError("check stage", "%s decision already recorded", stage)
}

func normalizeNotes(notes *string) *string {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return nil
	}
	n := *notes
	return &n
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
