package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func get(srv *http.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_HealthzAndMetrics(t *testing.T) {
	srv := NewServer(":0", nil)
	SchedulerRunsTotal.Add(0)

	rec := get(srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitehost_scheduler_runs_total")
}

func TestServer_Readyz(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(NewServer(":0", nil), "/readyz").Code)

	ready := NewServer(":0", func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, get(ready, "/readyz").Code)

	broken := NewServer(":0", func(context.Context) error { return errors.New("site registry corrupt") })
	rec := get(broken, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "site registry corrupt")
}
