package ports

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

// PlantClassifier identifies the plant in an image. Implementations never retry.
type PlantClassifier interface {
	Classify(ctx context.Context, image []byte, mediaType string) (domain.ClassificationResult, error)
}

// ImageInspector checks that raw bytes decode as a supported image.
type ImageInspector interface {
	Inspect(data []byte) (domain.ImageInfo, error)
}

// ObjectStorage stores uploaded images.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	Locate(key string) domain.StorageLocator
}

// CatalogueStore persists enriched records.
type CatalogueStore interface {
	Insert(ctx context.Context, record domain.EnrichedRecord, storageKey string) (domain.CatalogueEntry, error)
	List(ctx context.Context, excludeUnknown bool) ([]domain.CatalogueEntry, error)
}

// ReconcileStore is the mutation surface reserved for the reconciliation job.
// UpdateRecord replaces the record only if it still equals previous and reports
// whether the write happened.
type ReconcileStore interface {
	Scan(ctx context.Context, fn func(domain.CatalogueEntry) error) error
	UpdateRecord(ctx context.Context, id string, previous, next json.RawMessage) (bool, error)
}

// EventPublisher announces catalogue changes to other processes.
type EventPublisher interface {
	PublishEntryCreated(ctx context.Context, entryID string) error
}

// IngestMetrics records upload outcomes. Outcomes are domain categories or "Accepted".
type IngestMetrics interface {
	ObserveUpload(outcome string)
	ObserveClassify(outcome string, elapsed time.Duration)
}

// ReconcileMetrics records reconciliation runs.
type ReconcileMetrics interface {
	ObserveReconcile(report domain.ReconcileReport, elapsed time.Duration, err error)
}

// JobLock guarantees single-instance execution of a batch job.
type JobLock interface {
	TryLock() (bool, error)
	Unlock() error
}
