package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
	"github.com/kirillkom/plant-catalogue/internal/observability/metrics"
)

// multipartOverhead is the allowance for form boundaries and part headers on
// top of the image size limit.
const multipartOverhead = 1 << 20

type Options struct {
	// UploadsDir is served under /uploads/ when set (local storage backend only).
	UploadsDir     string
	MaxUploadBytes int64
	AllowOrigin    string
	Metrics        *metrics.HTTPServerMetrics
	BreakerStates  func() map[string]string
	Logger         *slog.Logger
}

type Router struct {
	ingest    ports.PlantIngestor
	catalogue ports.CatalogueReader
	opts      Options
	logger    *slog.Logger
	openAPI   []byte
}

func NewRouter(ctx context.Context, ingest ports.PlantIngestor, catalogue ports.CatalogueReader, opts Options) (*Router, error) {
	openAPI, err := loadOpenAPIDocument(ctx)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ingest:    ingest,
		catalogue: catalogue,
		opts:      opts,
		logger:    logger.With("component", "http"),
		openAPI:   openAPI,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/openapi.json", rt.openAPIDocument)
	mux.HandleFunc("/api/upload", rt.uploadPlant)
	mux.HandleFunc("/api/public-plants", rt.listPublicPlants)
	if rt.opts.UploadsDir != "" {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/", noDirListing(http.FileServer(http.Dir(rt.opts.UploadsDir)))))
	}
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = corsMiddleware(rt.opts.AllowOrigin, handler)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if rt.opts.BreakerStates != nil {
		payload["breakers"] = rt.opts.BreakerStates()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rt.openAPI)
}

func (rt *Router) uploadPlant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if rt.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+multipartOverhead)
	}

	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		writeError(w, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "upload", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		writeError(w, http.StatusBadRequest,
			domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("expected one file part, got %d", len(files))))
		return
	}
	header := files[0]
	file, err := header.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "upload", err))
		return
	}
	defer file.Close()

	record, err := rt.ingest.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		rt.logFailure(r.Context(), "upload_failed", err)
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (rt *Router) listPublicPlants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	entries, err := rt.catalogue.List(r.Context(), true)
	if err != nil {
		rt.logFailure(r.Context(), "list_failed", err)
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	records := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.Record)
	}
	writeJSON(w, http.StatusOK, records)
}

func (rt *Router) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelError
	switch domain.Category(err) {
	case domain.CategoryInvalidInput, domain.CategoryLowConfidence, domain.CategoryUnknownSubject:
		level = slog.LevelInfo
	}
	rt.logger.Log(ctx, level, msg,
		"request_id", requestIDFromContext(ctx),
		"category", domain.Category(err),
		"reason", domain.Diagnostic(err),
		"error", err,
	)
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
