// Package azblob stores uploads in an Azure Blob Storage container.
package azblob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/storage"
)

const Backend = "azblob"

type Config struct {
	ConnectionString string
	Container        string
	// PublicBaseURL overrides the container URL, e.g. for a CDN in front of it.
	PublicBaseURL string
}

type Storage struct {
	client    *azblob.Client
	container string
	baseURL   string
	logger    *slog.Logger
}

// New creates the client without contacting the service. Call EnsureContainer
// before the first upload.
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("azblob container required")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = strings.TrimRight(client.URL(), "/") + "/" + cfg.Container
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		client:    client,
		container: cfg.Container,
		baseURL:   baseURL,
		logger:    logger.With("component", "storage.azblob"),
	}, nil
}

func (s *Storage) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", s.container, err)
	}
	s.logger.Info("storage container ready", "container", s.container)
	return nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader, contentType string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}
	if _, err := s.client.UploadStream(ctx, s.container, key, data, opts); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Locate(key string) domain.StorageLocator {
	return domain.StorageLocator{
		Backend: Backend,
		BaseURL: s.baseURL,
		Bucket:  s.container,
		Key:     key,
	}
}
