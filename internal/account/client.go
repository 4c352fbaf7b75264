// Package account talks to the account store service holding the user
// documents mirrored from the device.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/2beens/workoutsync/internal/progress"
	"github.com/2beens/workoutsync/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	FieldUserSettings   = "userSettings"
	FieldWorkoutProgram = "workoutProgram"

	maxErrorBodyLen = 512
)

// StatusError is returned for any non 2xx response of the account store.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the account store at baseURL. A nil
// httpClient is replaced with a traced client using timeout.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *Client) userURL(userID string, elem ...string) string {
	u := c.baseURL + "/users/" + url.PathEscape(userID)
	for _, e := range elem {
		u += "/" + e
	}
	return u
}

func (c *Client) FetchSettings(ctx context.Context, userID string) (_ *progress.Settings, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "account.fetchSettings")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := c.do(ctx, http.MethodGet, c.userURL(userID, "settings"), nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		log.Debugf("account store holds no settings for user [%s]", userID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	settings := &progress.Settings{}
	if err := json.Unmarshal(body, settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return settings, nil
}

func (c *Client) PushProgram(ctx context.Context, program progress.Program, userID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "account.pushProgram")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	payload, err := json.Marshal(program)
	if err != nil {
		return fmt.Errorf("marshal program: %w", err)
	}
	_, err = c.do(ctx, http.MethodPut, c.userURL(userID, "program"), payload)
	return err
}

// PatchField sends {field: document} to the user record with method (PATCH or PUT).
func (c *Client) PatchField(ctx context.Context, field, method, userID string, document any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "account.patchField")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("account.field", field),
	)

	payload, err := json.Marshal(map[string]any{field: document})
	if err != nil {
		return fmt.Errorf("marshal [%s]: %w", field, err)
	}
	_, err = c.do(ctx, method, c.userURL(userID), payload)
	return err
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Tracef("account request: %s %s", method, url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBodyLen {
			body = body[:maxErrorBodyLen]
		}
		return nil, &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
		}
	}
	return body, nil
}
