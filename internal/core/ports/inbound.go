package ports

import (
	"context"
	"io"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

// PlantIngestor is the inbound contract for upload orchestration.
type PlantIngestor interface {
	Upload(ctx context.Context, filename, mediaType string, body io.Reader) (*domain.EnrichedRecord, error)
}

// CatalogueReader is the inbound read model for the public catalogue.
type CatalogueReader interface {
	List(ctx context.Context, excludeUnknown bool) ([]domain.CatalogueEntry, error)
}
