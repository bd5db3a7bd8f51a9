package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/animals/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/animals/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/animals/{id}", "418")))
}

func TestAuthObserver(t *testing.T) {
	m := New()
	m.AuthAttempt("login", false)
	m.AuthAttempt("login", false)
	m.AuthAttempt("login", true)
	m.Lockout("login")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("login", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("login", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authLockouts.WithLabelValues("login")))
}

func TestRealtimeAndJobs(t *testing.T) {
	m := New()
	m.EventPublished("INSERT")
	m.EventDropped("consultation:1234")
	m.EventDropped("vet-presence")
	m.JobRun("revoked_tokens", 3, nil)
	m.JobRun("revoked_tokens", 0, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.realtimeEvents.WithLabelValues("INSERT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.realtimeDropped.WithLabelValues("consultation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.realtimeDropped.WithLabelValues("vet-presence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("revoked_tokens", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("revoked_tokens", "false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.jobRemoved.WithLabelValues("revoked_tokens")))
}

func TestHandler_ExposesGauges(t *testing.T) {
	m := New()
	m.RegisterGauge("presence", "online_vets", "Vets currently online.", func() float64 { return 4 })

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "vetconnect_presence_online_vets 4"))
}
