// Package daemon exposes the game library and runner-tool managers over a
// localhost HTTP API so external frontends can start operations, watch
// their progress, and query state without going through the CLI.
package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/library"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/relay"
	"github.com/hangar-launcher/hangar/internal/tools"
)

const (
	// maxBodyBytes bounds request bodies. Operation parameters are tiny;
	// anything larger is a client bug.
	maxBodyBytes = 1 << 20

	// shutdownGrace is how long Run waits for in-flight requests after the
	// context is cancelled before closing connections outright.
	shutdownGrace = 5 * time.Second
)

// GameService is the slice of the game library manager the daemon drives.
type GameService interface {
	Install(app, basePath string, workers int) (string, error)
	Update(app string, workers int) (string, error)
	Repair(app string, workers int) (string, error)
	Uninstall(app string, keepFiles bool) (string, error)
	Import(app, path string) (string, error)
	SyncSaves(app, savePath string, skipUpload, skipDownload bool) (string, error)
	Move(app, dstRoot string) (string, error)
	Launch(app string, opts library.LaunchOptions) (string, error)
	Stop(ctx context.Context, app string) error
	Abort(app string) bool
	Library(ctx context.Context) ([]library.Entry, error)
}

// ToolService is the slice of the runner-tool manager the daemon drives.
type ToolService interface {
	Install(kind tools.Kind, version string) (string, error)
	Remove(kind tools.Kind, version string) (bool, error)
	RefreshCatalog(ctx context.Context, force bool) ([]tools.Descriptor, error)
	Catalog() []tools.Descriptor
	Abort(key string) bool
}

// Config carries the collaborators for a Server.
type Config struct {
	Games GameService
	Tools ToolService
	Hub   *relay.Hub

	// Logger defaults to a no-op logger.
	Logger *logging.Logger
}

// Server is the localhost HTTP surface. Construct with New, serve with Run,
// and release the hub observer with Close.
type Server struct {
	games GameService
	tools ToolService
	hub   *relay.Hub
	log   *logging.Logger

	router chi.Router

	closeOnce   sync.Once
	stop        chan struct{}
	stopObserve func()
}

// New validates the collaborators and assembles the router.
func New(cfg Config) (*Server, error) {
	if cfg.Games == nil {
		return nil, errors.New("daemon: game service is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("daemon: tool service is required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("daemon: event hub is required")
	}

	s := &Server{
		games: cfg.Games,
		tools: cfg.Tools,
		hub:   cfg.Hub,
		log:   cfg.Logger,
		stop:  make(chan struct{}),
	}
	if s.log == nil {
		s.log = logging.NopLogger()
	}
	s.stopObserve = cfg.Hub.Observe(observeResults)
	s.router = s.routes()

	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: allowLocalOrigin,
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:  []string{"Accept", "Content-Type"},
		MaxAge:          300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/library", s.handleLibrary)
		api.Get("/tools", s.handleToolCatalog)
		api.Post("/tools/install", s.handleToolInstall)
		api.Post("/tools/refresh", s.handleToolRefresh)
		api.Delete("/tools/{kind}/{version}", s.handleToolRemove)
		api.Post("/games/{app}/{op}", s.handleGameOp)
		api.Post("/abort/{key}", s.handleAbort)
		api.Get("/events/{key}", s.handleEvents)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the hub observer and unblocks any open event streams. Safe
// to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.stopObserve()
	})
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("daemon listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Unblock SSE handlers first so Shutdown can drain them.
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return srv.Close()
	}
	return nil
}

// allowLocalOrigin admits browser frontends served from this machine and
// nothing else.
func allowLocalOrigin(_ *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// gameOpRequest is the optional JSON body of POST /api/games/{app}/{op}.
// Each operation reads only its own fields.
type gameOpRequest struct {
	BasePath     string `json:"base_path"`
	Workers      int    `json:"workers"`
	KeepFiles    bool   `json:"keep_files"`
	Path         string `json:"path"`
	SavePath     string `json:"save_path"`
	SkipUpload   bool   `json:"skip_upload"`
	SkipDownload bool   `json:"skip_download"`
	Dest         string `json:"dest"`

	WineBin          string   `json:"wine_bin"`
	WinePrefix       string   `json:"wine_prefix"`
	Offline          bool     `json:"offline"`
	SkipVersionCheck bool     `json:"skip_version_check"`
	ExtraArgs        []string `json:"extra_args"`
}

// opResponse acknowledges an accepted asynchronous operation. Key is the
// event-stream key for GET /api/events/{key}.
type opResponse struct {
	OpID string `json:"op_id"`
	Key  string `json:"key"`
}

func (s *Server) handleGameOp(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	verb := chi.URLParam(r, "op")

	var req gameOpRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if verb == "stop" {
		if err := s.games.Stop(r.Context(), app); err != nil {
			s.writeOpError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var (
		opID string
		err  error
	)
	switch verb {
	case "install":
		opID, err = s.games.Install(app, req.BasePath, req.Workers)
	case "update":
		opID, err = s.games.Update(app, req.Workers)
	case "repair":
		opID, err = s.games.Repair(app, req.Workers)
	case "uninstall":
		opID, err = s.games.Uninstall(app, req.KeepFiles)
	case "import":
		opID, err = s.games.Import(app, req.Path)
	case "sync-saves":
		opID, err = s.games.SyncSaves(app, req.SavePath, req.SkipUpload, req.SkipDownload)
	case "move":
		opID, err = s.games.Move(app, req.Dest)
	case "launch":
		opID, err = s.games.Launch(app, library.LaunchOptions{
			WineBin:          req.WineBin,
			WinePrefix:       req.WinePrefix,
			Offline:          req.Offline,
			SkipVersionCheck: req.SkipVersionCheck,
			ExtraArgs:        req.ExtraArgs,
		})
	default:
		writeError(w, http.StatusBadRequest, "unknown operation "+verb)
		return
	}
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, opResponse{OpID: opID, Key: app})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.games.Library(r.Context())
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": entries})
}

func (s *Server) handleToolCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Catalog()})
}

type toolInstallRequest struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

func (s *Server) handleToolInstall(w http.ResponseWriter, r *http.Request) {
	var req toolInstallRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := tools.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Version == "" {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}

	opID, err := s.tools.Install(kind, req.Version)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, opResponse{
		OpID: opID,
		Key:  tools.Descriptor{Kind: kind, Version: req.Version}.Key(),
	})
}

func (s *Server) handleToolRemove(w http.ResponseWriter, r *http.Request) {
	kind, err := tools.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	removed, err := s.tools.Remove(kind, chi.URLParam(r, "version"))
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleToolRefresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = v
	}

	catalog, err := s.tools.RefreshCatalog(r.Context(), force)
	if err != nil {
		// The previous catalog stays served; the fetch itself failed.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": catalog})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	aborted := s.games.Abort(key)
	if !aborted {
		aborted = s.tools.Abort(key)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

// writeOpError maps manager errors onto the HTTP contract: 409 when the
// entity is busy, 404 when it is unknown, 503 when the operation needs the
// network and there is none.
func (s *Server) writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrOperationInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errors.ErrNotInstalled),
		errors.Is(err, errors.ErrRecordNotFound),
		errors.Is(err, errors.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errors.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrapf(err, "decode request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
