package notifyservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog/log"
)

const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

var ErrRejected = errors.New("pushover rejected message")

type Notification struct {
	Title          string
	Message        string
	Attachment     []byte
	AttachmentName string
}

// Pushover sends push notifications with an optional image attachment.
type Pushover struct {
	Token      string
	UserKey    string
	URL        string
	HTTPClient *http.Client
}

func NewPushover(token, userKey string, httpClient *http.Client) *Pushover {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Pushover{Token: token, UserKey: userKey, URL: DefaultPushoverURL, HTTPClient: httpClient}
}

// Enabled reports whether credentials are present.
func (p *Pushover) Enabled() bool {
	return p != nil && p.Token != "" && p.UserKey != ""
}

type pushoverResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

func (p *Pushover) Notify(ctx context.Context, n Notification) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fields := [][2]string{
		{"token", p.Token},
		{"user", p.UserKey},
		{"message", n.Message},
		{"title", n.Title},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	if len(n.Attachment) > 0 {
		name := n.AttachmentName
		if name == "" {
			name = "image.jpg"
		}
		fw, err := w.CreateFormFile("attachment", name)
		if err != nil {
			return fmt.Errorf("create attachment: %w", err)
		}
		if _, err := fw.Write(n.Attachment); err != nil {
			return fmt.Errorf("write attachment: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	url := p.URL
	if url == "" {
		url = DefaultPushoverURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &b)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send pushover message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var pr pushoverResponse
		if json.Unmarshal(body, &pr) == nil && len(pr.Errors) > 0 {
			return fmt.Errorf("%w: %d %v", ErrRejected, resp.StatusCode, pr.Errors)
		}
		return fmt.Errorf("%w: %d", ErrRejected, resp.StatusCode)
	}
	log.Debug().Msgf("Pushover accepted %q", n.Title)
	return nil
}
