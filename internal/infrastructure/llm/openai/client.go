// Package openai classifies plant photos with the OpenAI Responses API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/llm"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/llm/identify"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func New(baseURL, apiKey, model string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

type Classifier struct {
	client *Client
	now    func() time.Time
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client, now: time.Now}
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type inputMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type textFormat struct {
	Type string `json:"type"`
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  struct {
		Format textFormat `json:"format"`
	} `json:"text"`
}

type responsesReply struct {
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			Refusal string `json:"refusal"`
		} `json:"content"`
	} `json:"output"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
}

func (c *Classifier) Classify(ctx context.Context, image []byte, mediaType string) (domain.ClassificationResult, error) {
	if len(image) == 0 {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrInvalidInput, "openai.classify", errors.New("empty image"))
	}

	req := responsesRequest{
		Model: c.client.model,
		Input: []inputMessage{
			{Role: "system", Content: []contentPart{{Type: "input_text", Text: identify.Prompt}}},
			{Role: "user", Content: []contentPart{
				{Type: "input_text", Text: identify.UserInstruction},
				{Type: "input_image", ImageURL: identify.DataURI(image, mediaType)},
			}},
		},
	}
	req.Text.Format = textFormat{Type: "json_object"}

	var reply responsesReply
	if err := c.client.postJSON(ctx, "/responses", req, &reply, "classify"); err != nil {
		return domain.ClassificationResult{}, llm.WrapTransportError("openai.classify", err)
	}

	text, err := outputText(reply)
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	return identify.Decode(text, c.now())
}

// outputText concatenates every output_text part of the reply's messages.
func outputText(reply responsesReply) (string, error) {
	var b strings.Builder
	for _, item := range reply.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			switch part.Type {
			case "output_text":
				b.WriteString(part.Text)
			case "refusal":
				return "", domain.MalformedResponse(fmt.Errorf("model refused: %s", part.Refusal))
			}
		}
	}
	if b.Len() == 0 {
		if reply.IncompleteDetails != nil {
			return "", domain.MalformedResponse(fmt.Errorf("incomplete reply: %s", reply.IncompleteDetails.Reason))
		}
		return "", domain.MalformedResponse(errors.New("reply has no output text"))
	}
	return b.String(), nil
}
