package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	apimw "github.com/hamed0406/pingwatch/internal/httpapi/middleware"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/monitor"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/probe"
)

// ---- test helpers ----

type fakeEngine struct {
	targets   []domain.Target
	up        bool
	reloadErr error
	purged    []string
	alerts    int
}

func (f *fakeEngine) Snapshot() []monitor.TargetView {
	out := make([]monitor.TargetView, 0, len(f.targets))
	for _, t := range f.targets {
		out = append(out, monitor.TargetView{Name: t.Name, Host: t.Host, Status: domain.StatusUp})
	}
	return out
}

func (f *fakeEngine) Target(name string) (domain.Target, bool) {
	for _, t := range f.targets {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return domain.Target{}, false
}

func (f *fakeEngine) ProbeNow(_ context.Context, name string) (probe.Result, error) {
	if _, ok := f.Target(name); !ok {
		return probe.Result{}, monitor.ErrUnknownTarget
	}
	if f.up {
		return probe.Result{Up: true, Latency: 12 * time.Millisecond, Reason: "echo_reply"}, nil
	}
	return probe.Result{Up: false, Reason: "timeout"}, nil
}

func (f *fakeEngine) TriggerReload(context.Context) (monitor.ReloadResult, error) {
	if f.reloadErr != nil {
		return monitor.ReloadResult{}, f.reloadErr
	}
	return monitor.ReloadResult{OldInterval: 10 * time.Second, NewInterval: 10 * time.Second, TargetCount: len(f.targets)}, nil
}

func (f *fakeEngine) TestAlert(context.Context) notify.Report {
	f.alerts++
	return notify.Report{ID: "abc", Sent: []domain.RecipientID{"1"}}
}

func (f *fakeEngine) PurgeOrphans(context.Context) ([]string, error) { return f.purged, nil }

func setupRouter(t *testing.T, eng *fakeEngine) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Ticks.WithLabelValues("done").Inc()

	srv := NewServer(zap.NewNop(), eng, reg)
	srv.Diagnose = func(_ context.Context, host string) probe.DNSStatus {
		return probe.DNSStatus{Host: host, Class: "ADDRESS", IPs: []string{host}}
	}
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	return srv.Router(keys, nil, Limits{PublicRPM: 10_000, PublicBurst: 10_000})
}

func do(t *testing.T, h http.Handler, method, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var cams = []domain.Target{{Name: "Gate", Host: "10.0.0.1"}, {Name: "Lobby", Host: "10.0.0.2"}}

// ---- tests ----

func TestHealthzAndMetrics(t *testing.T) {
	h := setupRouter(t, &fakeEngine{})
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "pingwatch_ticks_total") {
		t.Fatalf("metrics missing ticks counter: %d", rec.Code)
	}
}

func TestListAndGetTargets(t *testing.T) {
	h := setupRouter(t, &fakeEngine{targets: cams})

	if rec := do(t, h, http.MethodGet, "/api/targets", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without key, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/targets", "pub_test")
	if rec.Code != 200 {
		t.Fatalf("want 200 list, got %d", rec.Code)
	}
	var list []monitor.TargetView
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[1].Name != "Lobby" {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/targets/lobby", "pub_test")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"host":"10.0.0.2"`) {
		t.Fatalf("get target: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/targets/nope", "pub_test"); rec.Code != 404 {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestProbe_DownAddsDNS(t *testing.T) {
	h := setupRouter(t, &fakeEngine{targets: cams})
	rec := do(t, h, http.MethodPost, "/api/targets/Gate/probe", "pub_test")
	if rec.Code != 200 {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var out probeReply
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Up || out.Message != "not reachable" || out.DNS == nil || out.DNS.Class != "ADDRESS" {
		t.Fatalf("unexpected reply: %+v", out)
	}
}

func TestProbe_UpHasLatency(t *testing.T) {
	h := setupRouter(t, &fakeEngine{targets: cams, up: true})
	rec := do(t, h, http.MethodPost, "/api/targets/Gate/probe", "pub_test")
	var out probeReply
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if !out.Up || out.LatencyMS != 12 || out.DNS != nil {
		t.Fatalf("unexpected reply: %+v", out)
	}
}

func TestAdminRoutes(t *testing.T) {
	eng := &fakeEngine{targets: cams, purged: []string{"Old"}}
	h := setupRouter(t, eng)

	if rec := do(t, h, http.MethodPost, "/api/reload", "pub_test"); rec.Code != http.StatusForbidden {
		t.Fatalf("public key on admin route: want 403, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/reload", "adm_test"); rec.Code != 200 {
		t.Fatalf("reload: want 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/alerts/test", "adm_test"); rec.Code != 200 || eng.alerts != 1 {
		t.Fatalf("test alert: %d alerts=%d", rec.Code, eng.alerts)
	}
	rec := do(t, h, http.MethodDelete, "/api/states/orphans", "adm_test")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"Old"`) {
		t.Fatalf("purge: %d %s", rec.Code, rec.Body.String())
	}
}

func TestReloadRejected(t *testing.T) {
	eng := &fakeEngine{reloadErr: &domain.ConfigError{Source: "targets.yaml", Err: errors.New("duplicate name")}}
	h := setupRouter(t, eng)
	rec := do(t, h, http.MethodPost, "/api/reload", "adm_test")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "previous configuration remains active") {
		t.Fatalf("body: %s", rec.Body.String())
	}
}
