package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neu-labs/neu/internal/logging"
	"github.com/neu-labs/neu/internal/updater"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	srv := NewServer(NewScheduler(newFakeRunner(), time.Hour, nil), t.TempDir(), nil, logging.Discard())

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServer_Status(t *testing.T) {
	stateDir := t.TempDir()
	sched := NewScheduler(newFakeRunner(), time.Hour, nil)
	srv := NewServer(sched, stateDir, nil, logging.Discard())

	if rec := do(t, srv.Handler(), http.MethodGet, "/status"); rec.Code != http.StatusNotFound {
		t.Fatalf("status without any cycle = %d, want 404", rec.Code)
	}

	persisted := &updater.Status{ID: "from-disk", Outcome: updater.OutcomeDone, FinishedAt: time.Now()}
	if err := updater.SaveStatus(stateDir, persisted); err != nil {
		t.Fatal(err)
	}
	rec := do(t, srv.Handler(), http.MethodGet, "/status")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"from-disk"`) {
		t.Fatalf("persisted status: %d %s", rec.Code, rec.Body.String())
	}

	sched.last = &updater.Result{ID: "in-memory", Outcome: updater.OutcomeFailed, Candidate: "2.0.0"}
	rec = do(t, srv.Handler(), http.MethodGet, "/status")
	var st updater.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.ID != "in-memory" || st.Outcome != updater.OutcomeFailed || st.Candidate != "2.0.0" {
		t.Errorf("status = %+v, want the scheduler's last result", st)
	}
}

func TestServer_Trigger(t *testing.T) {
	srv := NewServer(NewScheduler(newFakeRunner(), time.Hour, nil), t.TempDir(), nil, logging.Discard())

	rec := do(t, srv.Handler(), http.MethodPost, "/trigger")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"queued":true`) {
		t.Errorf("first trigger body = %s", rec.Body.String())
	}

	rec = do(t, srv.Handler(), http.MethodPost, "/trigger")
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"coalesced":true`) {
		t.Errorf("second trigger: %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(t, srv.Handler(), http.MethodGet, "/trigger"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /trigger = %d, want 404", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	sched := NewScheduler(newFakeRunner(), time.Hour, nil)

	srv := NewServer(sched, t.TempDir(), updater.NewMetrics(), logging.Discard())
	rec := do(t, srv.Handler(), http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics: %d", rec.Code)
	}

	bare := NewServer(sched, t.TempDir(), nil, logging.Discard())
	if rec := do(t, bare.Handler(), http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without collectors = %d, want 404", rec.Code)
	}
}
