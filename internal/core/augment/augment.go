// Package augment derives the reference fields attached to accepted results.
// Everything here is a pure function of the accepted data and the storage locator.
package augment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

const (
	WikiBaseURL = "https://en.wikipedia.org/wiki/"

	ReferenceSourcePublicUpload = "public_upload"
	ReferenceLicensePublic      = "public"

	FieldWikiURL        = "wiki_url"
	FieldReferenceImage = "reference_image"
)

// Augment turns an accepted result into the record that is persisted.
func Augment(result domain.ClassificationResult, locator domain.StorageLocator) domain.EnrichedRecord {
	return domain.EnrichedRecord{
		ClassificationResult: result,
		ReferenceImage:       ReferenceImage(locator),
		WikiURL:              WikiURL(result.ScientificName, result.IdentifiedName),
	}
}

func ReferenceImage(locator domain.StorageLocator) *domain.ReferenceImage {
	return &domain.ReferenceImage{
		URL:     locator.PublicURL(),
		Source:  ReferenceSourcePublicUpload,
		License: ReferenceLicensePublic,
	}
}

// WikiURL builds the encyclopedia link from the scientific name, falling back to
// the common name. It returns nil when neither is present.
func WikiURL(scientificName, identifiedName string) *string {
	name := strings.TrimSpace(scientificName)
	if name == "" {
		name = strings.TrimSpace(identifiedName)
	}
	if name == "" {
		return nil
	}
	link := WikiBaseURL + quote(strings.ReplaceAll(name, " ", "_"))
	return &link
}

// quote percent-encodes every byte outside the unreserved set, keeping '/'.
func quote(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	default:
		return false
	}
}

// Derivation recomputes one derived field of a stored document. Derive reports
// false when the field cannot be derived for this entry.
type Derivation struct {
	Field  string
	Derive func(doc map[string]json.RawMessage, entry domain.CatalogueEntry) (json.RawMessage, bool, error)
}

// Derivations lists every currently defined derived field in the order they are
// applied. locate may be nil, in which case reference images are not derived.
func Derivations(locate func(key string) domain.StorageLocator) []Derivation {
	derivations := []Derivation{{Field: FieldWikiURL, Derive: deriveWikiURL}}
	if locate != nil {
		derivations = append(derivations, Derivation{
			Field: FieldReferenceImage,
			Derive: func(_ map[string]json.RawMessage, entry domain.CatalogueEntry) (json.RawMessage, bool, error) {
				if entry.StorageKey == "" {
					return nil, false, nil
				}
				raw, err := json.Marshal(ReferenceImage(locate(entry.StorageKey)))
				if err != nil {
					return nil, false, fmt.Errorf("marshal reference image: %w", err)
				}
				return raw, true, nil
			},
		})
	}
	return derivations
}

func deriveWikiURL(doc map[string]json.RawMessage, _ domain.CatalogueEntry) (json.RawMessage, bool, error) {
	link := WikiURL(stringField(doc, "scientific_name"), stringField(doc, "identified_name"))
	if link == nil {
		return nil, false, nil
	}
	raw, err := json.Marshal(*link)
	if err != nil {
		return nil, false, fmt.Errorf("marshal wiki url: %w", err)
	}
	return raw, true, nil
}

func stringField(doc map[string]json.RawMessage, key string) string {
	raw, ok := doc[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}
