package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"noir-registry/internal/ports"
	"noir-registry/internal/shared"
	"noir-registry/internal/types"
)

const (
	DefaultListenAddr     = ":8080"
	serverHeaderTimeout   = 10 * time.Second
	serverShutdownTimeout = 10 * time.Second
	requestIDHeader       = "X-Request-ID"
)

// HTTPServerAdapter exposes the query surface as JSON over HTTP. Every route
// is served both at the root and under /api.
type HTTPServerAdapter struct {
	Addr           string
	AllowedOrigins []string

	query  ports.QueryPort
	logger zerolog.Logger
	clock  func() time.Time
}

func NewHTTPServerAdapter(addr string, allowedOrigins []string, query ports.QueryPort, logger zerolog.Logger) *HTTPServerAdapter {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultListenAddr
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &HTTPServerAdapter{
		Addr:           addr,
		AllowedOrigins: origins,
		query:          query,
		logger:         logger.With().Str("component", "http").Logger(),
		clock:          time.Now,
	}
}

// Handler returns the routed, CORS-wrapped and logged handler.
func (a *HTTPServerAdapter) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc("GET "+prefix+"/packages", a.listPackages)
		mux.HandleFunc("GET "+prefix+"/packages/{name}", a.getPackage)
		mux.HandleFunc("GET "+prefix+"/search", a.searchPackages)
		mux.HandleFunc("GET "+prefix+"/categories", a.listCategories)
		mux.HandleFunc("GET "+prefix+"/health", a.health)
	}
	return a.logRequests(a.cors(mux))
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (a *HTTPServerAdapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.Addr)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("failed to listen on " + a.Addr).
			WithCause(err)
	}
	return a.serve(ctx, listener)
}

func (a *HTTPServerAdapter) serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           h2c.NewHandler(a.Handler(), &http2.Server{}),
		ReadHeaderTimeout: serverHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return a.logger.WithContext(context.Background())
		},
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	a.logger.Info().Str("addr", listener.Addr().String()).Msg("registry listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("http server failed").
			WithCause(err)
	case <-ctx.Done():
	}
	a.logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("http server shutdown failed").
			WithCause(err)
	}
	a.logger.Info().Msg("http server stopped")
	return nil
}

func (a *HTTPServerAdapter) listPackages(w http.ResponseWriter, r *http.Request) {
	query, err := listQueryFromRequest(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	packages, err := a.query.ListPackages(r.Context(), query)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, packages)
}

func (a *HTTPServerAdapter) getPackage(w http.ResponseWriter, r *http.Request) {
	detail, err := a.query.GetPackage(r.Context(), r.PathValue("name"))
	if err != nil {
		if errbuilder.CodeOf(err) == errbuilder.CodeNotFound {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "package not found"})
			return
		}
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *HTTPServerAdapter) searchPackages(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if !values.Has("q") {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing query parameter q"})
		return
	}
	query, err := listQueryFromRequest(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sortValue := strings.TrimSpace(values.Get("sort"))
	if sortValue == "" {
		query.Sort = types.SortRelevance
	}
	packages, err := a.query.SearchPackages(r.Context(), values.Get("q"), query)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, packages)
}

func (a *HTTPServerAdapter) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.query.Categories(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

type healthBody struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}

func (a *HTTPServerAdapter) health(w http.ResponseWriter, r *http.Request) {
	now := a.clock().UTC().Format(time.RFC3339)
	if err := a.query.Health(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, healthBody{Status: "unhealthy", Database: "disconnected", Timestamp: now})
		return
	}
	writeJSON(w, http.StatusOK, healthBody{Status: "healthy", Database: "connected", Timestamp: now})
}

func listQueryFromRequest(r *http.Request) (types.ListQuery, error) {
	values := r.URL.Query()
	query := types.ListQuery{
		Sort:     types.SortOrder(values.Get("sort")),
		Keyword:  values.Get("keyword"),
		Category: values.Get("category"),
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return types.ListQuery{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("limit must be a positive integer")
		}
		query.Limit = limit
	}
	return query, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *HTTPServerAdapter) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	} else {
		logger.Debug().Err(err).Msg("request rejected")
	}
	message := shared.ErrorMessage(err)
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: message})
}

func statusForError(err error) int {
	switch errbuilder.CodeOf(err) {
	case errbuilder.CodeInvalidArgument:
		return http.StatusBadRequest
	case errbuilder.CodeNotFound:
		return http.StatusNotFound
	case errbuilder.CodeAlreadyExists:
		return http.StatusConflict
	case errbuilder.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *HTTPServerAdapter) cors(next http.Handler) http.Handler {
	allowAll := false
	allowed := map[string]struct{}{}
	for _, origin := range a.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *HTTPServerAdapter) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		logger := a.logger.With().Str("request_id", requestID).Logger()
		w.Header().Set(requestIDHeader, requestID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(logger.WithContext(r.Context())))
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
