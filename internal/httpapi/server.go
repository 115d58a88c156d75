package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/memcacheping/internal/domain"
	apimw "github.com/hamed0406/memcacheping/internal/httpapi/middleware"
	"github.com/hamed0406/memcacheping/internal/repo"
)

type Server struct {
	Logger   *zap.Logger
	Outcomes repo.OutcomeStore
	Gatherer prometheus.Gatherer
}

func NewServer(l *zap.Logger, outcomes repo.OutcomeStore, g prometheus.Gatherer) *Server {
	return &Server{Logger: l, Outcomes: outcomes, Gatherer: g}
}

type Options struct {
	AllowedOrigins []string
	APIKeys        []string
	RPM            int
	Burst          int
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	if s.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.RPM, opts.Burst))
		r.Use(apimw.RequireKey(opts.APIKeys))
		r.Get("/outcomes", s.handleListOutcomes)
		r.Get("/outcomes/{target}", s.handleGetOutcome)
		r.Get("/summary", s.handleSummary)
	})
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.Outcomes.Ready(r.Context()) {
		http.Error(w, "no complete round yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	outs, err := s.Outcomes.Latest(r.Context())
	if err != nil {
		s.Logger.Warn("api_list_error", zap.Error(err))
		http.Error(w, "list error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, outs)
}

func (s *Server) handleGetOutcome(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "target"))
	o, err := s.Outcomes.ByTarget(r.Context(), id)
	if err != nil {
		s.Logger.Warn("api_get_error", zap.String("target", string(id)), zap.Error(err))
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}
	if o == nil {
		http.Error(w, "unknown target", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sums, err := s.Outcomes.Summaries(r.Context())
	if err != nil {
		s.Logger.Warn("api_summary_error", zap.Error(err))
		http.Error(w, "summary error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the status API on addr until ctx is cancelled, then shuts down
// within gracePeriod.
func (s *Server) Serve(ctx context.Context, addr string, opts Options, gracePeriod time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("api_listen", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve status API")
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.Logger.Warn("api_shutdown_error", zap.Error(err))
		return err
	}
	s.Logger.Info("api_stopped")
	return nil
}
