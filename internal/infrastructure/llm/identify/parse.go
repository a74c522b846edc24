// Package identify holds the classifier contract shared by every backend: the
// instruction prompt, response parsing and structural validation.
package identify

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

const (
	MinCandidates = 1
	MaxCandidates = 3

	mirrorTolerance = 1e-9
)

var jsonFenceRegex = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// Parse decodes the classifier reply as exactly one JSON object. A reply wrapped
// in a single markdown fence is unwrapped first. Anything else is a malformed
// response; there is no best-effort recovery.
func Parse(text string) (domain.ClassificationResult, error) {
	content := strings.TrimSpace(text)
	if matches := jsonFenceRegex.FindStringSubmatch(content); len(matches) == 2 {
		content = strings.TrimSpace(matches[1])
	}
	if !strings.HasPrefix(content, "{") {
		return domain.ClassificationResult{}, domain.MalformedResponse(errors.New("reply is not a JSON object"))
	}

	dec := json.NewDecoder(strings.NewReader(content))
	var result domain.ClassificationResult
	if err := dec.Decode(&result); err != nil {
		return domain.ClassificationResult{}, domain.MalformedResponse(fmt.Errorf("decode reply: %w", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.ClassificationResult{}, domain.MalformedResponse(errors.New("trailing data after JSON object"))
	}
	if result.Candidates == nil {
		result.Candidates = []domain.CandidateIdentification{}
	}
	if result.LocalNames == nil {
		result.LocalNames = []domain.LocalName{}
	}
	return result, nil
}

// Validate re-checks the structural contract the prompt asks for. The "unknown"
// sentinel may come without candidates so that moderation can reject it.
func Validate(result domain.ClassificationResult) error {
	if len(result.Candidates) > MaxCandidates {
		return domain.ContractViolation("%d candidates, at most %d allowed", len(result.Candidates), MaxCandidates)
	}
	if !inUnitRange(result.Confidence) {
		return domain.ContractViolation("confidence %v outside [0,1]", result.Confidence)
	}
	for i, c := range result.Candidates {
		if !inUnitRange(c.Confidence) {
			return domain.ContractViolation("candidate %d confidence %v outside [0,1]", i+1, c.Confidence)
		}
		if i > 0 && c.Confidence >= result.Candidates[i-1].Confidence {
			return domain.ContractViolation("candidates not in strictly descending confidence at position %d", i+1)
		}
	}
	for i, n := range result.LocalNames {
		if !inUnitRange(n.Confidence) {
			return domain.ContractViolation("local name %d confidence %v outside [0,1]", i+1, n.Confidence)
		}
	}
	if result.FunFact != nil && !inUnitRange(result.FunFact.Confidence) {
		return domain.ContractViolation("fun fact confidence %v outside [0,1]", result.FunFact.Confidence)
	}

	if result.IsUnknown() {
		return nil
	}

	if len(result.Candidates) < MinCandidates {
		return domain.ContractViolation("no candidate identifications for %q", result.IdentifiedName)
	}
	primary := result.Candidates[0]
	if strings.TrimSpace(primary.IdentifiedName) != strings.TrimSpace(result.IdentifiedName) {
		return domain.ContractViolation("identified_name %q does not mirror first candidate %q", result.IdentifiedName, primary.IdentifiedName)
	}
	if strings.TrimSpace(primary.ScientificName) != strings.TrimSpace(result.ScientificName) {
		return domain.ContractViolation("scientific_name %q does not mirror first candidate %q", result.ScientificName, primary.ScientificName)
	}
	if math.Abs(primary.Confidence-result.Confidence) > mirrorTolerance {
		return domain.ContractViolation("confidence %v does not mirror first candidate %v", result.Confidence, primary.Confidence)
	}
	return nil
}

// Decode is Parse followed by Validate, stamping date_added when the reply left it empty.
func Decode(text string, now time.Time) (domain.ClassificationResult, error) {
	result, err := Parse(text)
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	if err := Validate(result); err != nil {
		return domain.ClassificationResult{}, err
	}
	if strings.TrimSpace(result.DateAdded) == "" {
		result.DateAdded = now.UTC().Format(time.RFC3339)
	}
	return result, nil
}

// DataURI encodes an image inline for transports that accept data URIs.
func DataURI(image []byte, mediaType string) string {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	var b bytes.Buffer
	b.Grow(len(mediaType) + 13 + base64.StdEncoding.EncodedLen(len(image)))
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(image))
	return b.String()
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
