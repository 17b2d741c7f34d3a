// internal/inference/client.go

// Package inference talks to the external model service. Models are served
// behind per-model HTTP endpoints; this side treats them as black boxes that
// turn an image into a label→confidence map and, on request, a heatmap
// explaining one label.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mediscan-back/internal/config"
)

// Result is one inference run: the full label→confidence map and the top
// score.
type Result struct {
	Predictions map[string]float64 `json:"predictions"`
	Confidence  float64            `json:"confidence"`
}

type Client struct {
	http *http.Client
	log  *zap.Logger
}

func NewClient(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{Timeout: 60 * time.Second},
		log:  log,
	}
}

// Predict runs the named model against the image and returns its confidence
// map. The top confidence is computed here so callers never re-derive it.
func (c *Client) Predict(ctx context.Context, model *config.Model, filename string, image io.Reader) (*Result, error) {
	body, contentType, err := multipartBody(image, filename, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, model.Endpoint+"/predict", contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode prediction response: %w", err)
	}
	if len(result.Predictions) == 0 {
		return nil, fmt.Errorf("model %s returned no predictions", model.Name)
	}

	for _, score := range result.Predictions {
		if score > result.Confidence {
			result.Confidence = score
		}
	}

	c.log.Debug("prediction completed",
		zap.String("model", model.Name),
		zap.Float64("confidence", result.Confidence))
	return &result, nil
}

// Explain requests a heatmap image for one label and returns its raw bytes
// (PNG from the service).
func (c *Client) Explain(ctx context.Context, model *config.Model, filename string, image io.Reader, label string) ([]byte, error) {
	body, contentType, err := multipartBody(image, filename, map[string]string{
		"label":  label,
		"method": model.Explanation,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, model.Endpoint+"/explain", contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read heatmap response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("model %s returned an empty heatmap for %s", model.Name, label)
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call model service: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("model service returned %d: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}

func multipartBody(image io.Reader, filename string, fields map[string]string) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, "", fmt.Errorf("failed to copy image: %w", err)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
