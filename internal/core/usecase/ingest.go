package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plant-catalogue/internal/core/augment"
	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/moderation"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
)

const (
	DefaultMaxUploadBytes  = 10 << 20
	DefaultClassifyTimeout = 60 * time.Second

	cleanupTimeout = 10 * time.Second
	outcomeOK      = "Accepted"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

type IngestOptions struct {
	MaxUploadBytes  int64
	ClassifyTimeout time.Duration
}

type IngestPlantUseCase struct {
	inspector  ports.ImageInspector
	storage    ports.ObjectStorage
	classifier ports.PlantClassifier
	gate       moderation.Gate
	catalogue  ports.CatalogueStore
	events     ports.EventPublisher
	metrics    ports.IngestMetrics
	logger     *slog.Logger
	opts       IngestOptions
	newKey     func() string
}

// NewIngestPlantUseCase wires the upload pipeline. events and metrics may be nil.
func NewIngestPlantUseCase(
	inspector ports.ImageInspector,
	storage ports.ObjectStorage,
	classifier ports.PlantClassifier,
	gate moderation.Gate,
	catalogue ports.CatalogueStore,
	events ports.EventPublisher,
	metrics ports.IngestMetrics,
	logger *slog.Logger,
	opts IngestOptions,
) *IngestPlantUseCase {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = DefaultClassifyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &IngestPlantUseCase{
		inspector:  inspector,
		storage:    storage,
		classifier: classifier,
		gate:       gate,
		catalogue:  catalogue,
		events:     events,
		metrics:    metrics,
		logger:     logger.With("component", "ingest"),
		opts:       opts,
		newKey:     uuid.NewString,
	}
}

// Upload runs one photo through inspection, storage, classification,
// moderation and enrichment. An accepted upload yields exactly one catalogue
// entry; on every other path the stored image is removed again.
func (uc *IngestPlantUseCase) Upload(
	ctx context.Context,
	filename, mediaType string,
	body io.Reader,
) (*domain.EnrichedRecord, error) {
	record, err := uc.upload(ctx, filename, mediaType, body)
	if err != nil {
		uc.metrics.ObserveUpload(domain.Diagnostic(err))
		return nil, err
	}
	uc.metrics.ObserveUpload(outcomeOK)
	return record, nil
}

func (uc *IngestPlantUseCase) upload(ctx context.Context, filename, mediaType string, body io.Reader) (*domain.EnrichedRecord, error) {
	data, err := uc.read(body)
	if err != nil {
		return nil, err
	}

	info, err := uc.inspector.Inspect(data)
	if err != nil {
		uc.logger.Info("upload_invalid", "filename", filename, "error", err)
		return nil, err
	}
	if mediaType != "" && !strings.EqualFold(mediaType, info.MediaType) {
		uc.logger.Debug("upload_media_type_mismatch", "declared", mediaType, "detected", info.MediaType)
	}

	key := uc.newKey() + storageExtension(filename, info)
	staged, err := uc.stage(ctx, key, data, info.MediaType)
	if err != nil {
		return nil, err
	}
	defer staged.release(ctx)

	result, err := uc.classify(ctx, data, info.MediaType)
	if err != nil {
		uc.logger.Warn("upload_classification_failed",
			"storage_key", key,
			"reason", domain.Diagnostic(err),
			"error", err,
		)
		return nil, err
	}

	if err := uc.gate.Moderate(result); err != nil {
		uc.logger.Info("upload_rejected",
			"storage_key", key,
			"reason", domain.Category(err),
			"identified_name", result.IdentifiedName,
			"confidence", result.Confidence,
		)
		return nil, err
	}

	record := augment.Augment(result, uc.storage.Locate(key))
	entry, err := uc.catalogue.Insert(ctx, record, key)
	if err != nil {
		uc.logger.Error("upload_persist_failed", "storage_key", key, "error", err)
		return nil, domain.WrapError(domain.ErrCatalogueWrite, "insert catalogue entry", err)
	}
	staged.promote()

	uc.logger.Info("upload_accepted",
		"entry_id", entry.ID,
		"storage_key", key,
		"identified_name", record.IdentifiedName,
		"confidence", record.Confidence,
	)
	uc.announce(ctx, entry.ID)
	return &record, nil
}

func (uc *IngestPlantUseCase) read(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("missing body"))
	}
	data, err := io.ReadAll(io.LimitReader(body, uc.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	if int64(len(data)) > uc.opts.MaxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload",
			fmt.Errorf("upload exceeds %d bytes", uc.opts.MaxUploadBytes))
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("empty upload"))
	}
	return data, nil
}

func (uc *IngestPlantUseCase) stage(ctx context.Context, key string, data []byte, mediaType string) (*stagedUpload, error) {
	if err := uc.storage.Save(ctx, key, bytes.NewReader(data), mediaType); err != nil {
		uc.logger.Error("upload_store_failed", "storage_key", key, "error", err)
		return nil, domain.WrapError(domain.ErrStorageWrite, "store upload", err)
	}
	return &stagedUpload{storage: uc.storage, key: key, logger: uc.logger}, nil
}

func (uc *IngestPlantUseCase) classify(ctx context.Context, data []byte, mediaType string) (domain.ClassificationResult, error) {
	classifyCtx, cancel := context.WithTimeout(ctx, uc.opts.ClassifyTimeout)
	defer cancel()

	started := time.Now()
	result, err := uc.classifier.Classify(classifyCtx, data, mediaType)
	if err != nil {
		err = classificationError(ctx, classifyCtx, uc.opts.ClassifyTimeout, err)
	}
	uc.metrics.ObserveClassify(outcomeOf(err), time.Since(started))
	return result, err
}

func classificationError(parent, classifyCtx context.Context, timeout time.Duration, err error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("classify upload: %w", err)
	case errors.Is(classifyCtx.Err(), context.DeadlineExceeded):
		return domain.WrapError(domain.ErrClassification, "classify upload", fmt.Errorf("no reply within %s: %v", timeout, err))
	case errors.Is(err, domain.ErrClassification):
		return err
	case errors.Is(err, domain.ErrTemporary):
		return domain.TemporaryClassification("classify upload", err)
	default:
		return domain.WrapError(domain.ErrClassification, "classify upload", err)
	}
}

func (uc *IngestPlantUseCase) announce(ctx context.Context, entryID string) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishEntryCreated(ctx, entryID); err != nil {
		uc.logger.Warn("entry_created_publish_failed", "entry_id", entryID, "error", err)
	}
}

// storageExtension keeps the client's extension when it names an image type
// and otherwise uses the detected format's.
func storageExtension(filename string, info domain.ImageInfo) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if imageExtensions[ext] {
		return ext
	}
	return info.Extension
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	return domain.Diagnostic(err)
}

// stagedUpload owns a stored image until the catalogue entry referencing it
// exists. release deletes it unless promote ran first.
type stagedUpload struct {
	storage  ports.ObjectStorage
	key      string
	logger   *slog.Logger
	promoted bool
}

func (s *stagedUpload) promote() {
	s.promoted = true
}

func (s *stagedUpload) release(ctx context.Context) {
	if s.promoted {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.storage.Delete(cleanupCtx, s.key); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("upload_cleanup_failed", "storage_key", s.key, "error", err)
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveUpload(string) {}

func (noopMetrics) ObserveClassify(string, time.Duration) {}
