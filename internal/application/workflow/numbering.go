package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/document"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// DocumentNumberer assigns document numbers and references
type DocumentNumberer interface {
	// EnsureDocumentNumber fills app.DocumentNumber and app.GeneratedDocumentURL
	// when missing and reports whether anything changed. An existing number is
	// never replaced. Persisting the application is left to the caller's transaction.
	EnsureDocumentNumber(ctx context.Context, app *entity.Application, tmpl *entity.ServiceTemplate) (bool, error)

	// DiscardDocument removes a letter rendered for a number that never committed
	DiscardDocument(ctx context.Context, req port.RenderRequest) error
}

type numberingService struct {
	sequences port.SequenceRepository
	renderer  port.DocumentRenderer
	now       func() time.Time
}

// NumberingOption configures the numbering service
type NumberingOption func(*numberingService)

// WithNumberingClock overrides the clock used to pick the numbering year
func WithNumberingClock(now func() time.Time) NumberingOption {
	return func(n *numberingService) {
		n.now = now
	}
}

// NewNumberingService creates a DocumentNumberer backed by a per-(code, year) counter
func NewNumberingService(sequences port.SequenceRepository, renderer port.DocumentRenderer, opts ...NumberingOption) DocumentNumberer {
	n := &numberingService{
		sequences: sequences,
		renderer:  renderer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// EnsureDocumentNumber implements DocumentNumberer
func (n *numberingService) EnsureDocumentNumber(ctx context.Context, app *entity.Application, tmpl *entity.ServiceTemplate) (bool, error) {
	const op = "ensure document number"

	if app.DocumentNumber != nil && app.GeneratedDocumentURL != nil {
		return false, nil
	}
	if tmpl == nil {
		return false, domainwf.NotFoundError(op, "service template %d", app.ServiceTemplateID)
	}

	number := app.DocumentNumber
	if number == nil {
		code := document.CodeFor(tmpl.ServiceType)
		year := n.now().Year()

		seq, err := n.sequences.Next(ctx, code, year)
		if err != nil {
			if errors.Is(err, domainwf.ErrNumberingConflict) {
				return false, domainwf.Classify(op, err)
			}
			return false, domainwf.StorageFailureError(op, err)
		}

		formatted := document.FormatNumber(seq, code, year)
		number = &formatted
	}

	ref, err := n.renderer.Render(ctx, port.RenderRequest{
		Application:    app,
		Template:       tmpl,
		DocumentNumber: *number,
	})
	if err != nil {
		return false, domainwf.StorageFailureError(op, err)
	}

	app.DocumentNumber = number
	app.GeneratedDocumentURL = &ref
	return true, nil
}

// DiscardDocument implements DocumentNumberer
func (n *numberingService) DiscardDocument(ctx context.Context, req port.RenderRequest) error {
	return n.renderer.Discard(ctx, req)
}
