package detectionservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrBackend marks a failure reported by the detection backend itself.
var ErrBackend = errors.New("detection backend error")

// Client talks to a DeepStack compatible object detection server.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		URL:        strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
	}
}

// Detect uploads the snapshot to /v1/vision/detection and returns the
// predictions in the order the backend reported them. A reply with
// success=false is returned as an error carrying the backend message.
func (c *Client) Detect(ctx context.Context, image []byte) ([]Prediction, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="snapshot.jpg"`)
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v1/vision/detection", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result detectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: bad status: %s, body: %s", ErrBackend, resp.Status, body)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	log.Debug().Msgf("Got detection result in %v: %s", time.Since(start), body)

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%w: %s", ErrBackend, msg)
	}

	return result.Predictions, nil
}
