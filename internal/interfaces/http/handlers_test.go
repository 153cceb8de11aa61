package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/kelurahan-portal/internal/application/service"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeService struct {
	createFn  func(ctx context.Context, input service.CreateApplicationInput) (*entity.Application, error)
	getFn     func(ctx context.Context, id int64) (*entity.Application, error)
	listFn    func(ctx context.Context, userID string, limit, offset int) ([]*entity.Application, error)
	historyFn func(ctx context.Context, id int64) ([]*entity.ApplicationHistory, error)
}

func (f *fakeService) CreateApplication(ctx context.Context, input service.CreateApplicationInput) (*entity.Application, error) {
	return f.createFn(ctx, input)
}

func (f *fakeService) GetApplication(ctx context.Context, id int64) (*entity.Application, error) {
	return f.getFn(ctx, id)
}

func (f *fakeService) ListApplicationsForUser(ctx context.Context, userID string, limit, offset int) ([]*entity.Application, error) {
	return f.listFn(ctx, userID, limit, offset)
}

func (f *fakeService) GetHistory(ctx context.Context, id int64) ([]*entity.ApplicationHistory, error) {
	return f.historyFn(ctx, id)
}

type fakeEngine struct {
	updateFn      func(ctx context.Context, id int64, target domainwf.State, actorID string, notes *string) (*entity.Application, error)
	generateFn    func(ctx context.Context, id int64) (*entity.Application, error)
	transitionsFn func(ctx context.Context, id int64, actorID string) ([]domainwf.State, error)
}

func (f *fakeEngine) UpdateApplicationStatus(ctx context.Context, id int64, target domainwf.State, actorID string, notes *string) (*entity.Application, error) {
	return f.updateFn(ctx, id, target, actorID, notes)
}

func (f *fakeEngine) GenerateApplicationDocument(ctx context.Context, id int64) (*entity.Application, error) {
	return f.generateFn(ctx, id)
}

func (f *fakeEngine) AvailableTransitions(ctx context.Context, id int64, actorID string) ([]domainwf.State, error) {
	return f.transitionsFn(ctx, id, actorID)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestServer(svc *fakeService, engine *fakeEngine, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 8080}, svc, engine, metrics, nopLogger{}).Router()
}

func doRequest(t *testing.T, router *gin.Engine, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func completedApp(id int64) *entity.Application {
	number := fmt.Sprintf("001/SKD/%d", 2025)
	url := "https://portal.test/documents/1/001-SKD-2025.xlsx"
	return &entity.Application{
		ID:                   id,
		CitizenID:            "citizen-1",
		Status:               domainwf.StateCompleted,
		DocumentNumber:       &number,
		GeneratedDocumentURL: &url,
		CreatedAt:            time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:            time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestHealthCheck(t *testing.T) {
	router := newTestServer(&fakeService{}, &fakeEngine{}, nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("kelurahan_up 1\n"))
	})

	rec, _ := doRequest(t, newTestServer(&fakeService{}, &fakeEngine{}, metrics), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kelurahan_up 1")

	rec, _ = doRequest(t, newTestServer(&fakeService{}, &fakeEngine{}, nil), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	var gotTarget domainwf.State
	var gotActor string
	var gotNotes *string

	engine := &fakeEngine{
		updateFn: func(ctx context.Context, id int64, target domainwf.State, actorID string, notes *string) (*entity.Application, error) {
			gotTarget, gotActor, gotNotes = target, actorID, notes
			return completedApp(id), nil
		},
	}
	router := newTestServer(&fakeService{}, engine, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/applications/7/status", "head-1",
		map[string]interface{}{"status": "completed", "notes": "Disetujui"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domainwf.StateCompleted, gotTarget)
	assert.Equal(t, "head-1", gotActor)
	require.NotNil(t, gotNotes)
	assert.Equal(t, "Disetujui", *gotNotes)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, float64(7), data["id"])
	assert.Equal(t, "001/SKD/2025", data["document_number"])
	assert.Equal(t, "Selesai", data["status_label"])
	assert.Equal(t, float64(100), data["progress"])
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", domainwf.NotFoundError("update", "application %d", 7), http.StatusNotFound, "NOT_FOUND"},
		{"invalid transition", domainwf.InvalidTransitionError("update", "no row"), http.StatusConflict, "INVALID_TRANSITION"},
		{"numbering conflict", domainwf.NumberingConflictError("number", errors.New("dup")), http.StatusServiceUnavailable, "NUMBERING_CONFLICT"},
		{"storage failure", domainwf.StorageFailureError("update", errors.New("disk")), http.StatusServiceUnavailable, "STORAGE_FAILURE"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{
				updateFn: func(context.Context, int64, domainwf.State, string, *string) (*entity.Application, error) {
					return nil, tt.err
				},
			}
			rec, resp := doRequest(t, newTestServer(&fakeService{}, engine, nil), http.MethodPost,
				"/api/applications/7/status", "staff-1", map[string]interface{}{"status": "village_processing"})

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestUpdateStatus_BadRequests(t *testing.T) {
	called := false
	engine := &fakeEngine{
		updateFn: func(context.Context, int64, domainwf.State, string, *string) (*entity.Application, error) {
			called = true
			return nil, nil
		},
	}
	router := newTestServer(&fakeService{}, engine, nil)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/applications/7/status", "", map[string]interface{}{"status": "completed"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doRequest(t, router, http.MethodPost, "/api/applications/abc/status", "head-1", map[string]interface{}{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, router, http.MethodPost, "/api/applications/7/status", "head-1", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/applications/7/status", "head-1", map[string]interface{}{"status": "archived"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", resp.Code)

	assert.False(t, called, "engine must not be reached for malformed requests")
}

func TestGenerateDocument(t *testing.T) {
	engine := &fakeEngine{
		generateFn: func(ctx context.Context, id int64) (*entity.Application, error) {
			if id == 9 {
				return nil, domainwf.InvalidTransitionError("generate", "application %d is not completed", id)
			}
			return completedApp(id), nil
		},
	}
	router := newTestServer(&fakeService{}, engine, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/applications/1/document", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), "001-SKD-2025.xlsx")

	rec, _ = doRequest(t, router, http.MethodPost, "/api/applications/9/document", "staff-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReadAndGenerateRequireUser(t *testing.T) {
	reached := false
	svc := &fakeService{
		getFn: func(ctx context.Context, id int64) (*entity.Application, error) {
			reached = true
			return completedApp(id), nil
		},
		historyFn: func(ctx context.Context, id int64) ([]*entity.ApplicationHistory, error) {
			reached = true
			return nil, nil
		},
	}
	engine := &fakeEngine{
		generateFn: func(ctx context.Context, id int64) (*entity.Application, error) {
			reached = true
			return completedApp(id), nil
		},
	}
	router := newTestServer(svc, engine, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/applications/1"},
		{http.MethodGet, "/api/applications/1/history"},
		{http.MethodPost, "/api/applications/1/document"},
	} {
		rec, _ := doRequest(t, router, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
	assert.False(t, reached, "handlers must stop before reaching the service or engine")
}

func TestCreateApplication(t *testing.T) {
	var got service.CreateApplicationInput
	svc := &fakeService{
		createFn: func(ctx context.Context, input service.CreateApplicationInput) (*entity.Application, error) {
			got = input
			if input.ServiceTemplateID == 99 {
				return nil, fmt.Errorf("%w: service template 99 is not active", service.ErrInvalidInput)
			}
			return &entity.Application{ID: 12, CitizenID: input.CitizenID, Status: domainwf.StateSubmitted}, nil
		},
	}
	router := newTestServer(svc, &fakeEngine{}, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/applications", "citizen-1", map[string]interface{}{
		"service_template_id": 1,
		"form_data":           map[string]interface{}{"alamat": "Jl. Melati 3"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "citizen-1", got.CitizenID)
	assert.Equal(t, "Jl. Melati 3", got.FormData["alamat"])
	assert.Contains(t, string(resp.Data), `"status_label":"Diajukan"`)

	rec, resp = doRequest(t, router, http.MethodPost, "/api/applications", "citizen-1", map[string]interface{}{"service_template_id": 99})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", resp.Code)

	rec, _ = doRequest(t, router, http.MethodPost, "/api/applications", "citizen-1", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListApplications(t *testing.T) {
	var gotLimit, gotOffset int
	svc := &fakeService{
		listFn: func(ctx context.Context, userID string, limit, offset int) ([]*entity.Application, error) {
			gotLimit, gotOffset = limit, offset
			if userID == "broken" {
				return nil, domainwf.StorageFailureError("list", errors.New("db down"))
			}
			return []*entity.Application{completedApp(1), completedApp(2)}, nil
		},
	}
	router := newTestServer(svc, &fakeEngine{}, nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/applications?limit=500&offset=-3", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, gotLimit)
	assert.Equal(t, 0, gotOffset)

	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	assert.Len(t, items, 2)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/applications?limit=5&offset=10", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, gotLimit)
	assert.Equal(t, 10, gotOffset)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/applications", "broken", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetApplicationAndHistory(t *testing.T) {
	notes := "ok"
	svc := &fakeService{
		getFn: func(ctx context.Context, id int64) (*entity.Application, error) {
			if id != 1 {
				return nil, domainwf.NotFoundError("get application", "application %d", id)
			}
			return completedApp(1), nil
		},
		historyFn: func(ctx context.Context, id int64) ([]*entity.ApplicationHistory, error) {
			return []*entity.ApplicationHistory{
				{ID: 1, ApplicationID: id, ActorID: "citizen-1", NewStatus: domainwf.StateSubmitted},
				{ID: 2, ApplicationID: id, ActorID: "rtrw-1", PreviousStatus: domainwf.StateSubmitted, NewStatus: domainwf.StateRTRWApproved, Notes: &notes},
			}, nil
		},
	}
	router := newTestServer(svc, &fakeEngine{}, nil)

	rec, _ := doRequest(t, router, http.MethodGet, "/api/applications/1", "citizen-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, router, http.MethodGet, "/api/applications/2", "citizen-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/applications/1/history", "citizen-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []entity.ApplicationHistory
	require.NoError(t, json.Unmarshal(resp.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, domainwf.StateRTRWApproved, records[1].NewStatus)
}

func TestAvailableTransitions(t *testing.T) {
	engine := &fakeEngine{
		transitionsFn: func(ctx context.Context, id int64, actorID string) ([]domainwf.State, error) {
			return []domainwf.State{domainwf.StateVillageProcessing, domainwf.StateVillageHeadReview}, nil
		},
	}
	router := newTestServer(&fakeService{}, engine, nil)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/applications/3/transitions", "staff-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var targets []string
	require.NoError(t, json.Unmarshal(resp.Data, &targets))
	assert.Equal(t, []string{"village_processing", "village_head_review"}, targets)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestServer(&fakeService{}, &fakeEngine{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/applications/1/status", nil)
	req.Header.Set("Origin", "https://portal.example.go.id")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-user-id")
}

func TestRequestID(t *testing.T) {
	router := newTestServer(&fakeService{}, &fakeEngine{}, nil)

	rec, _ := doRequest(t, router, http.MethodGet, "/health", "", nil)
	minted := rec.Header().Get(RequestIDHeader)
	assert.Len(t, minted, 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}
