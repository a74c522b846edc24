package azblob

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/plant-catalogue/internal/infrastructure/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=plantstore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/plantstore;"

func TestLocateUsesContainerURL(t *testing.T) {
	s, err := New(Config{ConnectionString: azuriteConnString, Container: "plants"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	loc := s.Locate("leaf.jpg")
	if loc.Backend != Backend || loc.Bucket != "plants" || loc.Key != "leaf.jpg" {
		t.Fatalf("unexpected locator %+v", loc)
	}
	if !strings.HasSuffix(loc.PublicURL(), "/plantstore/plants/leaf.jpg") {
		t.Fatalf("unexpected public url %q", loc.PublicURL())
	}
}

func TestLocatePrefersPublicBaseURL(t *testing.T) {
	s, err := New(Config{
		ConnectionString: azuriteConnString,
		Container:        "plants",
		PublicBaseURL:    "https://cdn.example.org/plants",
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := s.Locate("a b.png").PublicURL(); got != "https://cdn.example.org/plants/a%20b.png" {
		t.Fatalf("unexpected public url %q", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{ConnectionString: "not-a-connection-string", Container: "plants"}, nil); err == nil {
		t.Fatalf("expected error for invalid connection string")
	}
	if _, err := New(Config{ConnectionString: azuriteConnString}, nil); err == nil {
		t.Fatalf("expected error for missing container")
	}
}

func TestSaveValidatesKeyBeforeNetwork(t *testing.T) {
	s, err := New(Config{ConnectionString: azuriteConnString, Container: "plants"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = s.Save(context.Background(), "../x.jpg", strings.NewReader("x"), "image/jpeg")
	if !errors.Is(err, storage.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
