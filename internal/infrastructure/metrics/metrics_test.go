package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/kelurahan-portal/internal/application/dispatcher"
	"github.com/garyjia/kelurahan-portal/internal/domain/event"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

func TestRecorder_ObserveTransition(t *testing.T) {
	r := NewRecorder()

	r.ObserveTransition(domainwf.StateVillageHeadReview, domainwf.StateCompleted, "success", 20*time.Millisecond)
	r.ObserveTransition(domainwf.StateVillageHeadReview, domainwf.StateCompleted, "success", 30*time.Millisecond)
	r.ObserveTransition(domainwf.StateSubmitted, domainwf.StateCompleted, "INVALID_TRANSITION", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transitions.WithLabelValues("village_head_review", "completed", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("submitted", "completed", "INVALID_TRANSITION")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.transitionDuration))
}

func TestRecorder_DocumentsAndRetries(t *testing.T) {
	r := NewRecorder()

	r.ObserveDocument("success", time.Millisecond)
	r.ObserveDocument("noop", time.Millisecond)
	r.ObserveRetry("UpdateApplicationStatus")
	r.ObserveRetry("UpdateApplicationStatus")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.documents.WithLabelValues("noop")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.retries.WithLabelValues("UpdateApplicationStatus")))
}

func TestRecorder_CountsDispatchedEvents(t *testing.T) {
	r := NewRecorder()
	d := dispatcher.NewDispatcher()
	require.NoError(t, r.Subscribe(d))
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeApplicationCreated, 1, nil)))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeStatusChanged, 1, map[string]interface{}{
		"previous_status": "submitted",
		"new_status":      "rt_rw_approved",
	})))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("application.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("application.status_changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.applicationsByStep.WithLabelValues("submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.applicationsByStep.WithLabelValues("rt_rw_approved")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveRetry("GenerateApplicationDocument")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `kelurahan_workflow_retries_total{op="GenerateApplicationDocument"} 1`)
}
