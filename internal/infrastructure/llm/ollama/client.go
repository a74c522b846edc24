package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/llm"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/llm/identify"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Classifier identifies plants with a local vision model served by Ollama.
type Classifier struct {
	client *Client
	now    func() time.Time
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client, now: time.Now}
}

func (c *Classifier) Classify(ctx context.Context, image []byte, mediaType string) (domain.ClassificationResult, error) {
	if len(image) == 0 {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrInvalidInput, "ollama.classify", fmt.Errorf("empty image"))
	}

	reqBody := map[string]any{
		"model":  c.client.model,
		"system": identify.Prompt,
		"prompt": identify.UserInstruction,
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0.2,
		},
	}

	text, err := c.client.generate(ctx, reqBody)
	if err != nil {
		return domain.ClassificationResult{}, llm.WrapTransportError("ollama.classify", err)
	}
	return identify.Decode(text, c.now())
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
