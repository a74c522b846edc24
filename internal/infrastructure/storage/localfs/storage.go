package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/storage"
)

const Backend = "local"

// Storage keeps uploads in a flat directory that the HTTP adapter serves
// under publicBaseURL.
type Storage struct {
	basePath      string
	publicBaseURL string
}

func New(basePath, publicBaseURL string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath, publicBaseURL: publicBaseURL}, nil
}

func (s *Storage) Dir() string {
	return s.basePath
}

// Save writes to a temporary file first so a partial upload never becomes visible.
func (s *Storage) Save(_ context.Context, key string, data io.Reader, _ string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	f, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.basePath, key)); err != nil {
		return fmt.Errorf("publish file: %w", err)
	}
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *Storage) Locate(key string) domain.StorageLocator {
	return domain.StorageLocator{
		Backend: Backend,
		BaseURL: s.publicBaseURL,
		Key:     key,
	}
}
