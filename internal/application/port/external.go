package port

import (
	"context"

	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
)

// UserDirectory resolves acting users. Returns nil, nil for unknown ids.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*entity.User, error)
}

// ServiceTemplateLookup resolves service templates. Returns nil, nil for unknown ids.
type ServiceTemplateLookup interface {
	GetServiceTemplate(ctx context.Context, id int64) (*entity.ServiceTemplate, error)
}

// RenderRequest carries what a renderer needs to produce the official letter
type RenderRequest struct {
	Application    *entity.Application
	Template       *entity.ServiceTemplate
	DocumentNumber string
}

// DocumentRenderer produces the generated letter and returns its reference (URL or path).
// The same request must always yield the same reference.
type DocumentRenderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)

	// Discard removes what Render produced for req. Used when the
	// transaction that assigned the number rolls back.
	Discard(ctx context.Context, req RenderRequest) error
}
