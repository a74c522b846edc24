package domain

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// UnknownName is the sentinel the classifier uses when it cannot identify a plant.
const UnknownName = "unknown"

type CandidateIdentification struct {
	IdentifiedName string  `json:"identified_name"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
}

type LocalName struct {
	Name       string  `json:"name"`
	Language   string  `json:"language"`
	Region     string  `json:"region"`
	Confidence float64 `json:"confidence"`
}

type FunFact struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}

type Care struct {
	WateringFrequency   string `json:"watering_frequency"`
	SunlightRequirement string `json:"sunlight_requirement"`
	SoilType            string `json:"soil_type"`
	GrowthRate          string `json:"growth_rate"`
	HardinessZone       string `json:"hardiness_zone"`
}

// ClassificationResult is the structured document returned by the classifier.
// Tri-state attributes use nil for "unknown".
type ClassificationResult struct {
	Candidates       []CandidateIdentification `json:"candidate_identifications"`
	IdentifiedName   string                    `json:"identified_name"`
	ScientificName   string                    `json:"scientific_name"`
	LocalNames       []LocalName               `json:"local_names"`
	Confidence       float64                   `json:"confidence"`
	FunFact          *FunFact                  `json:"fun_fact,omitempty"`
	IsFlowering      *bool                     `json:"is_flowering"`
	IsMedicinal      *bool                     `json:"is_medicinal"`
	IsEdible         *bool                     `json:"is_edible"`
	IsToxicToPets    *bool                     `json:"is_toxic_to_pets"`
	PlantType        string                    `json:"plant_type"`
	Environment      string                    `json:"environment"`
	Difficulty       string                    `json:"difficulty"`
	Care             Care                      `json:"care"`
	OriginRegion     string                    `json:"origin_region"`
	PlantPersonality string                    `json:"plant_personality"`
	Fragrance        string                    `json:"fragrance"`
	Symbolism        string                    `json:"symbolism"`
	Lifespan         string                    `json:"lifespan"`
	DateAdded        string                    `json:"date_added"`
}

// IsUnknown reports whether the identified name is the "unknown" sentinel.
func (r ClassificationResult) IsUnknown() bool {
	return IsUnknownName(r.IdentifiedName)
}

func IsUnknownName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), UnknownName)
}

type ReferenceImage struct {
	URL     string `json:"url"`
	Source  string `json:"source"`
	License string `json:"license"`
}

// EnrichedRecord is the only form of a classification that is ever persisted.
type EnrichedRecord struct {
	ClassificationResult
	ReferenceImage *ReferenceImage `json:"reference_image,omitempty"`
	WikiURL        *string         `json:"wiki_url,omitempty"`
}

// CatalogueEntry is a stored record. Record holds the JSON document exactly as persisted.
type CatalogueEntry struct {
	ID         string          `json:"id"`
	StorageKey string          `json:"storage_key"`
	UploadedAt time.Time       `json:"uploaded_at"`
	Record     json.RawMessage `json:"record"`
}

// IdentifiedName reads identified_name from the raw record without decoding the rest.
func (e CatalogueEntry) IdentifiedName() string {
	var head struct {
		IdentifiedName string `json:"identified_name"`
	}
	if err := json.Unmarshal(e.Record, &head); err != nil {
		return ""
	}
	return head.IdentifiedName
}

// StorageLocator describes where an uploaded image lives, independent of backend.
type StorageLocator struct {
	Backend string `json:"backend"`
	BaseURL string `json:"base_url"`
	Bucket  string `json:"bucket,omitempty"`
	Key     string `json:"key"`
}

// PublicURL returns the address the stored object is served from. The shape is
// identical for every backend: base URL followed by the escaped key.
func (l StorageLocator) PublicURL() string {
	base := strings.TrimRight(l.BaseURL, "/")
	if l.Key == "" {
		return base
	}
	return base + "/" + url.PathEscape(l.Key)
}

// ImageInfo is what inspection learns about an upload from its bytes.
type ImageInfo struct {
	Format    string
	MediaType string
	Extension string
	Width     int
	Height    int
}

// ReconcileReport counts what one reconciliation run did.
type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
