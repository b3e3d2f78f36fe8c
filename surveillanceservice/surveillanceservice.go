package surveillanceservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrBadStatus   = errors.New("surveillance station returned non-200")
	ErrLoginFailed = errors.New("surveillance station rejected the login")
	ErrNotImage    = errors.New("surveillance station returned a non-image snapshot")
)

// authResponse is the envelope every webapi call answers with. Failures
// still come back as HTTP 200.
type authResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code int `json:"code"`
	} `json:"error"`
}

// Client talks to a Synology Surveillance Station. The session cookie is
// obtained on first use and kept in the client's cookie jar.
type Client struct {
	BaseURL  string
	Username string
	Password string

	http     *http.Client
	mu       sync.Mutex
	loggedIn bool
}

// NewClient copies httpClient and gives the copy its own cookie jar.
func NewClient(baseURL, username, password string, httpClient *http.Client) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	hc := http.Client{}
	if httpClient != nil {
		hc = *httpClient
	}
	hc.Jar = jar

	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Username: username,
		Password: password,
		http:     &hc,
	}, nil
}

func (c *Client) loginURL() string {
	return fmt.Sprintf("%s/webapi/auth.cgi?api=SYNO.API.Auth&method=Login&version=1&account=%s&passwd=%s&session=SurveillanceStation",
		c.BaseURL, url.QueryEscape(c.Username), url.QueryEscape(c.Password))
}

func (c *Client) snapshotURL(cameraID string) string {
	return fmt.Sprintf("%s/webapi/entry.cgi?camStm=1&version=2&cameraId=%s&api=%%22SYNO.SurveillanceStation.Camera%%22&method=GetSnapshot",
		c.BaseURL, url.QueryEscape(cameraID))
}

// Login opens a Surveillance Station session.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	c.loggedIn = false
	log.Info().Msgf("Session login: %s/webapi/auth.cgi (account %s)", c.BaseURL, c.Username)
	body, _, err := c.get(ctx, c.loginURL())
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Trace().Msgf("Login response: %s", body)

	var res authResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("login: decode response: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("%w (code %d)", ErrLoginFailed, res.Error.Code)
	}
	c.loggedIn = true
	return nil
}

// FetchSnapshot returns the current JPEG frame for a camera. A failed
// snapshot drops the session so the next call logs in again.
func (c *Client) FetchSnapshot(ctx context.Context, cameraID string) ([]byte, error) {
	c.mu.Lock()
	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.mu.Unlock()

	log.Debug().Msgf("Requesting snapshot for camera %s", cameraID)
	image, contentType, err := c.get(ctx, c.snapshotURL(cameraID))
	if err == nil && !isImage(contentType, image) {
		err = fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}
	if err != nil {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		return nil, fmt.Errorf("snapshot for camera %s: %w", cameraID, err)
	}
	log.Debug().Msgf("Snapshot downloaded (%d bytes)", len(image))
	return image, nil
}

func isImage(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return strings.HasPrefix(contentType, "image/")
}

func (c *Client) get(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", err
	}
	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %d", ErrBadStatus, res.StatusCode)
	}
	return body, res.Header.Get("Content-Type"), nil
}
