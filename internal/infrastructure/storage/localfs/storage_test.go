package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/storage"
)

func TestSaveDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "http://localhost:8080/uploads/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Save(ctx, "leaf.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "leaf.jpg"))
	if err != nil || string(got) != "jpeg-bytes" {
		t.Fatalf("unexpected stored content %q (%v)", got, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}

	if url := s.Locate("leaf.jpg").PublicURL(); url != "http://localhost:8080/uploads/leaf.jpg" {
		t.Fatalf("unexpected public url %q", url)
	}

	if err := s.Delete(ctx, "leaf.jpg"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "leaf.jpg"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSaveRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = s.Save(context.Background(), "../escape.jpg", strings.NewReader("x"), "image/jpeg")
	if !errors.Is(err, storage.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
