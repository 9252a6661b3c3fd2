package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	apimw "github.com/hamed0406/pingwatch/internal/httpapi/middleware"
	"github.com/hamed0406/pingwatch/internal/monitor"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/probe"
)

// Engine is the monitor surface the API exposes.
type Engine interface {
	Snapshot() []monitor.TargetView
	Target(name string) (domain.Target, bool)
	ProbeNow(ctx context.Context, name string) (probe.Result, error)
	TriggerReload(ctx context.Context) (monitor.ReloadResult, error)
	TestAlert(ctx context.Context) notify.Report
	PurgeOrphans(ctx context.Context) ([]string, error)
}

type Server struct {
	Logger   *zap.Logger
	Engine   Engine
	Gatherer prometheus.Gatherer
	// Diagnose runs when an on-demand probe finds the host unreachable.
	Diagnose func(ctx context.Context, host string) probe.DNSStatus
}

func NewServer(l *zap.Logger, e Engine, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Server{Logger: l, Engine: e, Gatherer: g, Diagnose: probe.Diagnose}
}

type Limits struct {
	PublicRPM   int
	PublicBurst int
}

func (s *Server) Router(keys apimw.Keys, origins []string, lim Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(apimw.AccessLog(s.Logger))
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(lim.PublicRPM, lim.PublicBurst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/targets", s.handleListTargets)
		r.Get("/targets/{name}", s.handleGetTarget)
		r.Post("/targets/{name}/probe", s.handleProbe)

		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/reload", s.handleReload)
			r.Post("/alerts/test", s.handleTestAlert)
			r.Delete("/states/orphans", s.handlePurgeOrphans)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	t, ok := s.Engine.Target(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown target")
		return
	}
	for _, v := range s.Engine.Snapshot() {
		if v.Name == t.Name {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown target")
}

type probeReply struct {
	Target    string           `json:"target"`
	Host      string           `json:"host"`
	Up        bool             `json:"up"`
	Message   string           `json:"message"`
	LatencyMS float64          `json:"latency_ms"`
	Reason    string           `json:"reason,omitempty"`
	DNS       *probe.DNSStatus `json:"dns,omitempty"`
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := s.Engine.Target(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown target")
		return
	}
	res, err := s.Engine.ProbeNow(r.Context(), t.Name)
	if errors.Is(err, monitor.ErrUnknownTarget) {
		writeError(w, http.StatusNotFound, "unknown target")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "probe failed")
		return
	}

	out := probeReply{
		Target:    t.Name,
		Host:      t.Host,
		Up:        res.Up,
		Message:   "reachable",
		LatencyMS: float64(res.Latency) / float64(time.Millisecond),
		Reason:    res.Reason,
	}
	if !res.Up {
		out.Message = "not reachable"
		if s.Diagnose != nil {
			dns := s.Diagnose(r.Context(), t.Host)
			out.DNS = &dns
			s.Logger.Info("dns_check",
				zap.String("host", dns.Host),
				zap.String("class", dns.Class),
				zap.Strings("ips", dns.IPs),
				zap.String("cname", dns.CNAME),
				zap.String("resolver_error", dns.ResolverError),
			)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	res, err := s.Engine.TriggerReload(r.Context())
	if err != nil {
		var ce *domain.ConfigError
		code := http.StatusInternalServerError
		if errors.As(err, &ce) {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, map[string]string{
			"error":   err.Error(),
			"message": "reload rejected; previous configuration remains active",
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	rep := s.Engine.TestAlert(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"broadcast_id": rep.ID,
		"sent":         len(rep.Sent),
		"pruned":       len(rep.Pruned),
		"failed":       len(rep.Failed),
	})
}

func (s *Server) handlePurgeOrphans(w http.ResponseWriter, r *http.Request) {
	gone, err := s.Engine.PurgeOrphans(r.Context())
	if err != nil {
		s.Logger.Error("purge_orphans_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "purge could not be persisted")
		return
	}
	if gone == nil {
		gone = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": gone})
}
