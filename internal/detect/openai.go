package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"image-diff-finder/internal/region"
	"image-diff-finder/internal/retry"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/xerrors"
)

var MissingAPIKeyError = errors.New("api key is not set")
var MalformedResponseError = errors.New("no function call payload in response")

// ResponseStatusError is returned when the detection service answers with a
// non-2xx status after retries are exhausted.
type ResponseStatusError struct {
	StatusCode int
	Body       string
}

func (e *ResponseStatusError) Error() string {
	return fmt.Sprintf("detection request failed with status %d: %s", e.StatusCode, e.Body)
}

type OpenAIConfig struct {
	APIKey    string
	Model     string
	Endpoint  string
	MaxTokens int

	Timeout       time.Duration
	RetryStrategy retry.Strategy
	RetryOn       *retry.On
}

func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:         "gpt-4o",
		Endpoint:      "https://api.openai.com/v1/chat/completions",
		MaxTokens:     300,
		Timeout:       120 * time.Second,
		RetryStrategy: retry.NewExponentialBackOff(100*time.Millisecond, 5*time.Second, 3, nil),
		RetryOn:       retry.NewDefaultRetryOn(),
	}
}

type openAIDetector struct {
	config OpenAIConfig
	client *http.Client
}

// NewOpenAIDetector creates a Detector backed by an OpenAI-compatible chat
// completions endpoint with vision support. The credential is required up
// front; a run never starts without one.
func NewOpenAIDetector(ctx context.Context, c OpenAIConfig) (Detector, error) {
	if c.APIKey == "" {
		return nil, MissingAPIKeyError
	}

	defaults := DefaultOpenAIConfig()
	if c.Model == "" {
		c.Model = defaults.Model
	}
	if c.Endpoint == "" {
		c.Endpoint = defaults.Endpoint
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaults.MaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.RetryStrategy == nil {
		c.RetryStrategy = defaults.RetryStrategy
	}
	if c.RetryOn == nil {
		c.RetryOn = defaults.RetryOn
	}

	return &openAIDetector{
		config: c,
		client: &http.Client{
			Timeout: c.Timeout, // retry.Transport does not have perTryTimeout
			Transport: otelhttp.NewTransport(&retry.Transport{
				Base:          http.DefaultTransport,
				RetryStrategy: c.RetryStrategy,
				RetryOn:       c.RetryOn,
			}),
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image1  string `json:"image1,omitempty"`
	Image2  string `json:"image2,omitempty"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model        string            `json:"model"`
	Messages     []chatMessage     `json:"messages"`
	Functions    []chatFunction    `json:"functions"`
	FunctionCall map[string]string `json:"function_call"`
	MaxTokens    int               `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			FunctionCall *struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function_call"`
		} `json:"message"`
	} `json:"choices"`
}

type functionArguments struct {
	Regions []region.Region `json:"regions"`
}

func regionSchema() map[string]any {
	coordinate := func(description string) map[string]any {
		return map[string]any{
			"type":        "number",
			"description": description,
		}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"regions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"position_x": coordinate("X coordinate of the clipping region (top-left, px)"),
						"position_y": coordinate("Y coordinate of the clipping region (top-left, px)"),
						"width":      coordinate("Width of the clipping region (px)"),
						"height":     coordinate("Height of the clipping region (px)"),
					},
					"required": []string{"position_x", "position_y", "width", "height"},
				},
			},
		},
		"required": []string{"regions"},
	}
}

func (d *openAIDetector) Detect(ctx context.Context, baseline []byte, target []byte, width int, height int) ([]region.Region, error) {
	payload := chatRequest{
		Model: d.config.Model,
		Messages: []chatMessage{
			{
				Role:    "user",
				Content: fmt.Sprintf("Please find the differences between two images of size %d*%d. Provide the rectangular regions (position, width, height) that enclose the differences. Return the results in an array as there may be multiple differences.", width, height),
				Image1:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(baseline),
				Image2:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(target),
			},
		},
		Functions: []chatFunction{
			{
				Name:        "image_diff",
				Description: "Region definition for image difference",
				Parameters:  regionSchema(),
			},
		},
		FunctionCall: map[string]string{"name": "image_diff"},
		MaxTokens:    d.config.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+d.config.APIKey)

	response, err := d.client.Do(request)
	if err != nil {
		return nil, xerrors.Errorf("failed to send detection request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var buffer bytes.Buffer
		_, _ = buffer.ReadFrom(io.LimitReader(response.Body, 4096))
		return nil, &ResponseStatusError{
			StatusCode: response.StatusCode,
			Body:       buffer.String(),
		}
	}

	var result chatResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return nil, xerrors.Errorf("failed to decode response body: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, xerrors.Errorf("no choices in response: %w", MalformedResponseError)
	}

	for _, choice := range result.Choices {
		if choice.Message.FunctionCall == nil {
			continue
		}

		var arguments functionArguments
		if err := json.Unmarshal([]byte(choice.Message.FunctionCall.Arguments), &arguments); err != nil {
			return nil, xerrors.Errorf("failed to decode function call arguments: %w", err)
		}

		regions := make([]region.Region, 0, len(arguments.Regions))
		for _, r := range arguments.Regions {
			// Degenerate candidates are dropped at the boundary so the
			// merge stage only ever sees positive extents.
			if r.Width <= 0 || r.Height <= 0 {
				continue
			}
			regions = append(regions, r)
		}
		return regions, nil
	}

	return nil, MalformedResponseError
}
