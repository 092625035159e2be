package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestIntakeCounters(t *testing.T) {
	before := testutil.ToFloat64(intakeVolume)
	IncIntakeLogged(250)
	IncIntakeLogged(500)
	assert.Equal(t, before+750, testutil.ToFloat64(intakeVolume))
}

func TestAddSyncedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(syncRecords.WithLabelValues("push"))
	AddSynced("push", 0)
	AddSynced("push", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(syncRecords.WithLabelValues("push")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := httpRequests.WithLabelValues(http.MethodGet, "/items/{id}", "418")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
