package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/bookmap/internal/analysis"
	"github.com/sells-group/bookmap/internal/render"
	"github.com/sells-group/bookmap/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	Long:  "Serves POST /analyze for uploaded registry exports and exposes past runs and their maps.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{Mode: "serve", RunSubdir: true})
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		s := newServer(env.Analyzer, env.History, serverOptions{
			OutputDir:      cfg.Output.Dir,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			RatePerMinute:  cfg.Server.RatePerMinute,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// serverOptions configures the HTTP surface.
type serverOptions struct {
	OutputDir      string
	MaxUploadBytes int64
	RatePerMinute  float64 // per client IP on POST /analyze; 0 disables
	AllowedOrigins []string
}

// server handles uploads and run lookups. Runs are serialized because the
// JSON-file geocode cache assumes a single writer.
type server struct {
	analyzer *analysis.Analyzer
	history  store.Store
	opts     serverOptions
	limiter  *ipLimiter

	mu sync.Mutex
}

func newServer(a *analysis.Analyzer, history store.Store, opts serverOptions) *server {
	s := &server{analyzer: a, history: history, opts: opts}
	if opts.RatePerMinute > 0 {
		s.limiter = newIPLimiter(opts.RatePerMinute)
	}
	return s
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(s.rateLimit).Post("/analyze", s.handleAnalyze)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/map", s.handleArtifact(render.HTMLFile, "text/html; charset=utf-8"))
		r.Get("/{id}/markers", s.handleArtifact(render.MarkersFile, "application/geo+json"))
		r.Get("/{id}/boundary", s.handleArtifact(render.BoundaryFile, "application/geo+json"))
	})
	return r
}

// analyzeResponse is returned by POST /analyze.
type analyzeResponse struct {
	Report *analysis.Report `json:"report"`
	MapURL string           `json:"map_url,omitempty"`
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		if r.ContentLength > s.opts.MaxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	s.mu.Lock()
	run, err := s.analyzer.ForProvince(r.FormValue("province")).AnalyzeBytes(r.Context(), filepath.Base(header.Filename), data)
	s.mu.Unlock()
	if err != nil {
		zap.L().Warn("analyze upload failed", zap.String("file", header.Filename), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := analyzeResponse{Report: run.Report}
	if run.Report.Files != nil {
		resp.MapURL = "/runs/" + run.Report.RunID + "/map"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	runs, err := s.history.ListRuns(r.Context(), store.RunFilter{
		Province: q.Get("province"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	// Summaries only; the full report is served by GET /runs/{id}.
	for i := range runs {
		runs[i].Report = nil
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := s.history.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleArtifact(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := runID(w, r)
		if !ok {
			return
		}
		if s.opts.OutputDir == "" {
			writeError(w, http.StatusNotFound, "artifacts are not kept")
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, filepath.Join(s.opts.OutputDir, id, name))
	}
}

// runID reads the {id} parameter. Only UUIDs are accepted so the id can
// be used as a directory name.
func runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return "", false
	}
	return id.String(), true
}

func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// maxTrackedClients bounds the per-IP buckets kept by ipLimiter.
const maxTrackedClients = 4096

// ipLimiter keeps one token bucket per client IP. The least recently seen
// clients are forgotten once the bound is reached.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

func newIPLimiter(perMinute float64) *ipLimiter {
	return newIPLimiterSize(perMinute, maxTrackedClients)
}

func newIPLimiterSize(perMinute float64, maxClients int) *ipLimiter {
	limiters, _ := lru.New[string, *rate.Limiter](max(1, maxClients)) // only fails for size <= 0
	return &ipLimiter{
		limit:    rate.Limit(perMinute / 60),
		burst:    max(1, int(math.Ceil(perMinute))),
		limiters: limiters,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(ip, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
