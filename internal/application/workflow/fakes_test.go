package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/kelurahan-portal/internal/application/dispatcher"
	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/domain/event"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// memStore is an in-memory database. WithTransaction holds a single writer
// lock and restores a snapshot when fn fails, the way an immediate SQLite
// transaction behaves.
type memStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	applications map[int64]*entity.Application
	sequences    map[string]int64
	history      []*entity.ApplicationHistory
	nextID       int64

	updateErrs []error // returned by UpdateWorkflow, one per call, before writing
	historyErr error
}

func newMemStore() *memStore {
	return &memStore{
		applications: make(map[int64]*entity.Application),
		sequences:    make(map[string]int64),
	}
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	apps := make(map[int64]*entity.Application, len(s.applications))
	for id, app := range s.applications {
		apps[id] = app.Clone()
	}
	seqs := make(map[string]int64, len(s.sequences))
	for k, v := range s.sequences {
		seqs[k] = v
	}
	historyLen := len(s.history)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.applications = apps
		s.sequences = seqs
		s.history = s.history[:historyLen]
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) put(app *entity.Application) *entity.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	app.ID = s.nextID
	s.applications[app.ID] = app.Clone()
	return app
}

func (s *memStore) get(id int64) *entity.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return nil
	}
	return app.Clone()
}

func (s *memStore) sequence(code string, year int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequences[fmt.Sprintf("%s/%d", code, year)]
}

func (s *memStore) historyFor(id int64) []*entity.ApplicationHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ApplicationHistory
	for _, h := range s.history {
		if h.ApplicationID == id {
			out = append(out, h)
		}
	}
	return out
}

// memApplications implements port.ApplicationRepository
type memApplications struct{ s *memStore }

func (r memApplications) Create(ctx context.Context, app *entity.Application) error {
	r.s.put(app)
	return nil
}

func (r memApplications) GetByID(ctx context.Context, id int64) (*entity.Application, error) {
	return r.s.get(id), nil
}

func (r memApplications) GetByIDForUpdate(ctx context.Context, id int64) (*entity.Application, error) {
	return r.s.get(id), nil
}

func (r memApplications) UpdateWorkflow(ctx context.Context, app *entity.Application, expected domainwf.State) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if len(r.s.updateErrs) > 0 {
		err := r.s.updateErrs[0]
		r.s.updateErrs = r.s.updateErrs[1:]
		if err != nil {
			return err
		}
	}

	stored, ok := r.s.applications[app.ID]
	if !ok || stored.Status != expected {
		return domainwf.ErrConcurrentUpdate
	}
	if app.DocumentNumber != nil {
		for id, other := range r.s.applications {
			if id != app.ID && other.DocumentNumber != nil && *other.DocumentNumber == *app.DocumentNumber {
				return domainwf.NumberingConflictError("update workflow", errors.New("duplicate document number"))
			}
		}
	}
	r.s.applications[app.ID] = app.Clone()
	return nil
}

func (r memApplications) List(ctx context.Context, filter port.ApplicationFilter) ([]*entity.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Application
	for _, app := range r.s.applications {
		out = append(out, app.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memSequences implements port.SequenceRepository
type memSequences struct{ s *memStore }

func (r memSequences) Next(ctx context.Context, code string, year int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := fmt.Sprintf("%s/%d", code, year)
	r.s.sequences[key]++
	return r.s.sequences[key], nil
}

// memHistory implements port.HistoryRepository
type memHistory struct{ s *memStore }

func (r memHistory) Create(ctx context.Context, h *entity.ApplicationHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.historyErr != nil {
		return r.s.historyErr
	}
	h.ID = int64(len(r.s.history) + 1)
	r.s.history = append(r.s.history, h)
	return nil
}

func (r memHistory) GetByApplicationID(ctx context.Context, id int64) ([]*entity.ApplicationHistory, error) {
	return r.s.historyFor(id), nil
}

type mockUsers struct {
	users map[string]*entity.User
	err   error
}

func (m *mockUsers) GetUser(ctx context.Context, id string) (*entity.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

type mockTemplates struct {
	templates map[int64]*entity.ServiceTemplate
}

func (m *mockTemplates) GetServiceTemplate(ctx context.Context, id int64) (*entity.ServiceTemplate, error) {
	return m.templates[id], nil
}

type mockRenderer struct {
	mu        sync.Mutex
	calls     int
	err       error
	discarded []string
}

func (m *mockRenderer) Render(ctx context.Context, req port.RenderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("https://portal.test/documents/%d/%s.xlsx", req.Application.ID, req.DocumentNumber), nil
}

func (m *mockRenderer) Discard(ctx context.Context, req port.RenderRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded = append(m.discarded, req.DocumentNumber)
	return nil
}

func (m *mockRenderer) discardedNumbers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.discarded...)
}

func (m *mockRenderer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
	err    error
}

func (m *mockDispatcher) Subscribe(name string, handler dispatcher.Handler, types ...event.Type) error {
	return nil
}

func (m *mockDispatcher) Unsubscribe(name string) bool { return false }

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockDispatcher) Subscribers(eventType event.Type) []dispatcher.Subscription {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, evt := range m.events {
		out = append(out, evt.Type)
	}
	return out
}

type mockMetrics struct {
	mu          sync.Mutex
	transitions []string
	documents   []string
	retries     int
}

func (m *mockMetrics) ObserveTransition(from, to domainwf.State, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, fmt.Sprintf("%s->%s:%s", from, to, outcome))
}

func (m *mockMetrics) ObserveDocument(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, outcome)
}

func (m *mockMetrics) ObserveRetry(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}
