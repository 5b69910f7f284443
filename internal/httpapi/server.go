package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"irisd/internal/catalog"
	"irisd/pkg/types"
)

// Service defines the methods required by the HTTP API layer. It is
// implemented by the session registry.
type Service interface {
	LoadModel(path string, ctxSize int, seed int64, threads int) (string, error)
	UnloadModel(id string) error
	StartSession(modelID, prompt string, params types.GenerateParams) (int64, error)
	NextToken(sessionID int64) (string, bool)
	CancelSession(sessionID int64)
	Embed(modelID, text string) ([]float32, error)
	Models() []types.LoadedModel
	Status() types.StatusResponse
	Ready() bool
}

// Options carries handler configuration that is not part of the Service.
type Options struct {
	// ModelsDir is scanned for the catalog listing and id resolution.
	// Empty disables the catalog.
	ModelsDir string
}

func NewMux(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		resp := types.ModelsResponse{Loaded: svc.Models()}
		if opts.ModelsDir != "" {
			files, err := catalog.LoadDir(opts.ModelsDir)
			if err == nil {
				resp.Catalog = files
			} else if zlog != nil {
				zlog.Warn().Err(err).Str("dir", opts.ModelsDir).Msg("catalog scan failed")
			}
		}
		writeJSON(w, resp)
	})

	r.Post("/models", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSONError(w, http.StatusBadRequest, "path is required")
			return
		}
		path := req.Path
		if opts.ModelsDir != "" {
			p, err := catalog.Resolve(opts.ModelsDir, req.Path)
			if err != nil {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			path = p
		}
		id, err := svc.LoadModel(path, req.ContextSize, req.Seed, req.Threads)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, types.LoadResponse{ModelID: id})
	})

	r.Delete("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.UnloadModel(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req types.StartRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Model == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		id, err := svc.StartSession(req.Model, req.Prompt, req.Params)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, types.StartResponse{SessionID: id})
	})

	r.Post("/sessions/{id}/next", func(w http.ResponseWriter, r *http.Request) {
		sid, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		piece, ok := svc.NextToken(sid)
		writeJSON(w, types.NextResponse{Token: piece, Done: !ok})
	})

	r.Delete("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sid, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		svc.CancelSession(sid)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/infer", func(w http.ResponseWriter, r *http.Request) {
		var req types.InferRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Model == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Str("path", r.URL.Path).Str("model", req.Model)
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("infer start")
		}

		sid, err := svc.StartSession(req.Model, req.Prompt, req.Params)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		writer := io.Writer(w)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		enc := json.NewEncoder(writer)

		// Join server base context with request context so shutdown cancels
		// the stream too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		tokens := 0
		for {
			if joinedCtx.Err() != nil {
				svc.CancelSession(sid)
				return
			}
			piece, ok := svc.NextToken(sid)
			if err := enc.Encode(types.NextResponse{Token: piece, Done: !ok}); err != nil {
				svc.CancelSession(sid)
				return
			}
			if flush != nil {
				flush()
			}
			if !ok {
				break
			}
			tokens++
		}
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Int("tokens", tokens).Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("infer end")
		}
	})

	r.Post("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req types.EmbedRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Model == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		if req.Text == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		emb, err := svc.Embed(req.Model, req.Text)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, types.EmbedResponse{Embedding: emb, Dim: len(emb)})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("shutting down"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces the JSON content type and body limit, then decodes into
// dst. It writes the error response itself and reports success.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
