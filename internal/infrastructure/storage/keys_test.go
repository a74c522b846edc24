package storage

import (
	"errors"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"0b6c1f0e-4f7e-4bb4-9d1c-1f4d0c7a8b9e.jpg", nil},
		{"", ErrEmptyKey},
		{"../etc/passwd", ErrInvalidKey},
		{"nested/key.png", ErrInvalidKey},
		{`win\key.png`, ErrInvalidKey},
		{"a..b.png", ErrInvalidKey},
	}
	for _, tt := range tests {
		if err := ValidateKey(tt.key); !errors.Is(err, tt.want) {
			t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.want)
		}
	}
}
