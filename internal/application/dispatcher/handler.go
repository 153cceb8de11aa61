package dispatcher

import (
	"context"

	"github.com/garyjia/kelurahan-portal/internal/domain/event"
)

// Handler reacts to a committed workflow event
type Handler func(ctx context.Context, evt *event.Event) error

// Subscription describes a registered subscriber
type Subscription struct {
	Name  string
	Types []event.Type
}

type subscriber struct {
	name    string
	types   map[event.Type]struct{}
	handler Handler
}

func (s subscriber) wants(t event.Type) bool {
	_, ok := s.types[t]
	return ok
}

func (s subscriber) describe() Subscription {
	types := make([]event.Type, 0, len(s.types))
	for _, t := range event.AllTypes() {
		if s.wants(t) {
			types = append(types, t)
		}
	}
	return Subscription{Name: s.name, Types: types}
}
