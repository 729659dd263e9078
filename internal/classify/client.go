// Package classify is the client for the external image-classification
// service. The service accepts a waste photo and reports how many items
// of each category (cardboard, glass, metal, paper, plastic, trash) it
// detected; the lifecycle engine refuses to create a ticket when nothing
// was detected.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/wastetrace/wastetrace/internal/domain"
)

// Result is the classification verdict for one image.
type Result struct {
	Detected bool                  `json:"detected"`
	Category string                `json:"category,omitempty"`
	Counts   domain.Classification `json:"counts,omitempty"`
	Message  string                `json:"message,omitempty"`
}

// Client calls the /classify-image endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a classifier client for the given service base URL.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: baseURL, client: client}
}

// Classify uploads the image as multipart form data and returns the
// service's verdict. A transport or non-2xx failure is an error; a
// detected=false verdict is not — that decision belongs to the caller.
func (c *Client) Classify(ctx context.Context, filename string, image io.Reader) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return Result{}, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify-image", &body)
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classification failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("classification service returned %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode classification: %w", err)
	}
	return result, nil
}
