package webhookservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrBadStatus = errors.New("webhook returned non-2xx")

// Client calls the camera trigger webhook and the homebridge accessory webhook.
type Client struct {
	HomebridgeURL string
	HTTPClient    *http.Client
}

func NewClient(homebridgeURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		HomebridgeURL: strings.TrimSuffix(homebridgeURL, "/"),
		HTTPClient:    httpClient,
	}
}

// HasHomebridge reports whether accessory updates can be sent at all.
func (c *Client) HasHomebridge() bool {
	return c.HomebridgeURL != ""
}

// TriggerCamera hits the camera's own trigger url so the recorder starts
// an event.
func (c *Client) TriggerCamera(ctx context.Context, triggerURL string) error {
	return c.callAction(ctx, triggerURL)
}

// SetAccessoryState flips a homebridge accessory, e.g. a motion sensor.
func (c *Client) SetAccessoryState(ctx context.Context, accessoryID string, state bool) error {
	if !c.HasHomebridge() {
		return errors.New("no homebridge webhook url configured")
	}
	target := fmt.Sprintf("%s/?accessoryId=%s&state=%s",
		c.HomebridgeURL, url.QueryEscape(accessoryID), strconv.FormatBool(state))
	return c.callAction(ctx, target)
}

func (c *Client) callAction(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if log.Logger.GetLevel() == zerolog.TraceLevel {
		resBody, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		log.Trace().Msgf("webhook response body: %s", resBody)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %d from %s", ErrBadStatus, res.StatusCode, req.URL.Host)
	}
	log.Debug().Msgf("Sent webhook to %s: %d", req.URL.Host, res.StatusCode)
	return nil
}
