package caldav

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailcal/internal/ics"
	"mailcal/internal/models"
	"mailcal/internal/sanitize"
)

const (
	userAgent       = "mailcal/1.0"
	contentType     = "text/calendar; charset=utf-8"
	maxErrorSnippet = 200
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", userAgent)
	return t.Transport.RoundTrip(req)
}

// Options configures the destination store.
type Options struct {
	BaseURL            string // e.g. https://hub.example.com/cdav/
	Password           string // shared secret; the destination id is the username
	Calendar           string // calendar collection under each destination, e.g. "default"
	Limits             sanitize.Limits
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Uploader writes events into per-destination calendars with plain HTTP PUTs.
type Uploader struct {
	logger    *slog.Logger
	baseURL   *url.URL
	password  string
	calendar  string
	limits    sanitize.Limits
	timeout   time.Duration
	transport http.RoundTripper
}

// NewUploader validates opts and creates an Uploader.
func NewUploader(logger *slog.Logger, opts Options) (*Uploader, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid caldav base url %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid caldav base url %q: scheme must be http or https", opts.BaseURL)
	}
	if opts.Calendar == "" {
		opts.Calendar = "default"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Uploader{
		logger:    logger,
		baseURL:   base,
		password:  opts.Password,
		calendar:  opts.Calendar,
		limits:    opts.Limits,
		timeout:   opts.Timeout,
		transport: transport,
	}, nil
}

// httpClient returns a client authenticating as the given destination.
// Redirects are never followed: a 3xx to a PUT is reported as a failure and
// credentials stay with the configured host.
func (u *Uploader) httpClient(destination string) *http.Client {
	return &http.Client{
		Timeout: u.timeout,
		Transport: &customTransport{
			Username:  destination,
			Password:  u.password,
			Transport: u.transport,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// CollectionURL is the calendar collection events for destination are written to.
func (u *Uploader) CollectionURL(destination string) string {
	return u.baseURL.JoinPath("calendars", destination, u.calendar).String() + "/"
}

// Upload writes events to destination in order and stops at the first failure.
// Events after a failure are not attempted and are reported as skipped.
func (u *Uploader) Upload(ctx context.Context, destination string, events []*models.CalendarEvent) models.BatchResult {
	result := models.BatchResult{Destination: destination}
	client := u.httpClient(destination)

	for i, event := range events {
		outcome := u.put(ctx, client, destination, event)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Status != models.Uploaded {
			result.Skipped = len(events) - i - 1
			u.logger.Error("Failed to upload event",
				"destination", destination,
				"event", i+1,
				"title", outcome.Summary,
				"reason", outcome.Reason,
				"skipped", result.Skipped)
			break
		}
		u.logger.Info("Uploaded event", "destination", destination, "title", outcome.Summary, "status", outcome.StatusCode)
	}
	return result
}

// put prepares, serializes and writes a single event.
func (u *Uploader) put(ctx context.Context, client *http.Client, destination string, event *models.CalendarEvent) models.UploadOutcome {
	ics.Prepare(event, u.limits)
	outcome := models.UploadOutcome{
		Status:  models.Failed,
		UID:     event.UID(),
		Summary: event.Summary(),
	}
	if outcome.Summary == "" {
		outcome.Summary = "No title"
	}

	body, err := ics.Serialize(event)
	if err != nil {
		outcome.Reason = err.Error()
		return outcome
	}
	u.logger.Debug("Serialized event envelope", "destination", destination, "uid", outcome.UID, "bytes", len(body))

	resource := u.CollectionURL(destination) + eventFilename()
	outcome.Resource = resource

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, resource, bytes.NewReader(body))
	if err != nil {
		outcome.Reason = fmt.Sprintf("failed to build request: %v", err)
		return outcome
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		outcome.Reason = fmt.Sprintf("failed to put event: %v", err)
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		outcome.Status = models.Uploaded
		_, _ = io.Copy(io.Discard, resp.Body)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
		_, _ = io.Copy(io.Discard, resp.Body)
		outcome.Reason = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return outcome
}

// eventFilename names a new resource in the destination collection.
func eventFilename() string {
	return fmt.Sprintf("email-event-%s.ics", uuid.New().String())
}
