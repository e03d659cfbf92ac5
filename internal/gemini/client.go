// Package gemini calls Google's Gemini generateContent API to describe the
// clothing in an image and collect grounded shopping links.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/stylelens/internal/look"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-3-pro-preview"

	defaultMimeType = "image/jpeg"
	temperature     = 0.7
	maxResponseSize = 8 << 20
)

// GenericFailure is reported when the service gives no message of its own.
const GenericFailure = "Failed to analyze image. Please try again."

// NoAnalysis is the result text used when a candidate carries no text parts.
const NoAnalysis = "No analysis generated."

const stylistPrompt = `Act as a professional fashion stylist and visual shopper.
Identify every item of clothing, accessory, and jewelry visible in this image.
For each item:
1. Describe its style, material, and key features.
2. Suggest specific search terms to find this exact or very similar items.
3. Use your search grounding capabilities to find real-world store links where these items can be purchased.
Format your response in a clean, readable way with sections for each detected item.`

// AnalysisError is returned for every failed analysis attempt. Message is
// safe to show to the user verbatim.
type AnalysisError struct {
	Message string
	Status  int // HTTP status, 0 for transport failures
	Err     error
}

func (e *AnalysisError) Error() string { return e.Message }

func (e *AnalysisError) Unwrap() error { return e.Err }

// Client communicates with the Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a Gemini client for model. A zero timeout leaves the
// request bounded only by the caller's context.
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return NewClient(apiKey, DefaultModel, 0).WithBaseURL(baseURL)
}

// WithBaseURL points c at baseURL. An empty baseURL keeps the current one.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// Analyze sends image (a data URI or bare base64 payload) to the model in a
// single attempt and returns its description and grounding sources.
func (c *Client) Analyze(ctx context.Context, image string) (look.AnalysisResult, error) {
	mime, data := splitDataURI(image)
	if data == "" {
		return look.AnalysisResult{}, &AnalysisError{Message: "No image data to analyze."}
	}

	t := temperature
	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{MimeType: mime, Data: data}},
				{Text: stylistPrompt},
			},
		}},
		Tools:            []tool{{GoogleSearch: &struct{}{}}},
		GenerationConfig: &generationConfig{Temperature: &t},
	})
	if err != nil {
		return look.AnalysisResult{}, &AnalysisError{Message: GenericFailure, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	resp, err := c.generate(ctx, body)
	if err != nil {
		return look.AnalysisResult{}, err
	}

	switch o := interpret(resp).(type) {
	case success:
		return o.result, nil
	case failure:
		return look.AnalysisResult{}, &AnalysisError{Message: o.message, Status: http.StatusOK}
	default:
		return look.AnalysisResult{}, &AnalysisError{Message: GenericFailure}
	}
}

func (c *Client) generate(ctx context.Context, body []byte) (*generateResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &AnalysisError{Message: GenericFailure, Err: fmt.Errorf("creating request: %w", err)}
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		msg := GenericFailure
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			msg = "Analysis request was cancelled or timed out."
		}
		return nil, &AnalysisError{Message: msg, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &AnalysisError{Message: GenericFailure, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, raw)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &AnalysisError{Message: GenericFailure, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &out, nil
}

func statusError(status int, raw []byte) *AnalysisError {
	var env errorEnvelope
	msg := GenericFailure
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	return &AnalysisError{
		Message: msg,
		Status:  status,
		Err:     fmt.Errorf("unexpected status %d", status),
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
}

// splitDataURI separates a "data:<mime>;base64,<payload>" string into its
// MIME type and payload. Input without a prefix is returned as the payload
// with the default MIME type.
func splitDataURI(s string) (mime, data string) {
	s = strings.TrimSpace(s)
	head, payload, found := strings.Cut(s, ",")
	if !found {
		return defaultMimeType, s
	}
	mime = defaultMimeType
	if rest, ok := strings.CutPrefix(head, "data:"); ok {
		if m, _, _ := strings.Cut(rest, ";"); m != "" {
			mime = m
		}
	}
	return mime, payload
}
