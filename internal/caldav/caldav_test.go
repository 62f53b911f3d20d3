package caldav

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcal/internal/ics"
	"mailcal/internal/models"
	"mailcal/internal/sanitize"
)

type recordedPut struct {
	Method      string
	Path        string
	User        string
	Password    string
	ContentType string
	UserAgent   string
	Body        string
}

// fakeStore answers PUTs with the next status from statuses and records each request.
type fakeStore struct {
	mu       sync.Mutex
	statuses []int
	puts     []recordedPut
}

func (s *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	user, pass, _ := r.BasicAuth()
	s.puts = append(s.puts, recordedPut{
		Method:      r.Method,
		Path:        r.URL.Path,
		User:        user,
		Password:    pass,
		ContentType: r.Header.Get("Content-Type"),
		UserAgent:   r.Header.Get("User-Agent"),
		Body:        string(body),
	})

	status := http.StatusCreated
	if len(s.statuses) > 0 {
		status = s.statuses[0]
		s.statuses = s.statuses[1:]
	}
	w.WriteHeader(status)
	if status >= 300 {
		_, _ = io.WriteString(w, "database error: "+strings.Repeat("x", 500))
	}
}

func newTestUploader(t *testing.T, srv *httptest.Server) *Uploader {
	t.Helper()
	u, err := NewUploader(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		BaseURL:  srv.URL + "/cdav/",
		Password: "s3cret",
		Calendar: "default",
		Limits:   sanitize.DefaultLimits(),
	})
	require.NoError(t, err)
	return u
}

func parseEvents(t *testing.T, summaries ...string) []*models.CalendarEvent {
	t.Helper()
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//Test//Invite//EN"}
	for _, s := range summaries {
		lines = append(lines,
			"BEGIN:VEVENT",
			"DTSTAMP:20250101T090000Z",
			"DTSTART:20250110T190000Z",
			"SUMMARY:"+s,
			"END:VEVENT",
		)
	}
	lines = append(lines, "END:VCALENDAR")
	events, err := ics.Parse([]byte(strings.Join(lines, "\r\n") + "\r\n"))
	require.NoError(t, err)
	require.Len(t, events, len(summaries))
	return events
}

func TestUpload_SingleEvent(t *testing.T) {
	store := &fakeStore{statuses: []int{http.StatusCreated}}
	srv := httptest.NewServer(store)
	defer srv.Close()

	u := newTestUploader(t, srv)
	events := parseEvents(t, "Jam Night")

	result := u.Upload(context.Background(), "music", events)

	assert.True(t, result.Succeeded())
	assert.Equal(t, "music", result.Destination)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, models.Uploaded, result.Outcomes[0].Status)
	assert.Equal(t, http.StatusCreated, result.Outcomes[0].StatusCode)
	assert.NotEmpty(t, result.Outcomes[0].UID)
	assert.Equal(t, result.Outcomes[0].UID, events[0].UID())

	require.Len(t, store.puts, 1)
	put := store.puts[0]
	assert.Equal(t, http.MethodPut, put.Method)
	assert.True(t, strings.HasPrefix(put.Path, "/cdav/calendars/music/default/email-event-"), put.Path)
	assert.True(t, strings.HasSuffix(put.Path, ".ics"), put.Path)
	assert.Equal(t, "music", put.User)
	assert.Equal(t, "s3cret", put.Password)
	assert.Equal(t, "text/calendar; charset=utf-8", put.ContentType)
	assert.Equal(t, userAgent, put.UserAgent)
	assert.True(t, strings.HasPrefix(put.Body, "BEGIN:VCALENDAR"))
	assert.Contains(t, put.Body, "SUMMARY:Jam Night")
	assert.Contains(t, put.Body, "UID:"+events[0].UID())
	assert.Equal(t, 1, strings.Count(put.Body, "BEGIN:VEVENT"))
}

func TestUpload_SuccessStatuses(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(&fakeStore{statuses: []int{status}})
			defer srv.Close()

			result := newTestUploader(t, srv).Upload(context.Background(), "music", parseEvents(t, "A"))
			assert.True(t, result.Succeeded())
		})
	}
}

func TestUpload_OtherStatusesFail(t *testing.T) {
	for _, status := range []int{http.StatusAccepted, http.StatusMultiStatus, http.StatusUnauthorized, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(&fakeStore{statuses: []int{status}})
			defer srv.Close()

			result := newTestUploader(t, srv).Upload(context.Background(), "music", parseEvents(t, "A"))
			assert.False(t, result.Succeeded())
			require.Len(t, result.Outcomes, 1)
			assert.Equal(t, models.Failed, result.Outcomes[0].Status)
			assert.Equal(t, status, result.Outcomes[0].StatusCode)
		})
	}
}

func TestUpload_RedirectIsNotFollowed(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"moved permanently", http.StatusMovedPermanently},
		{"found", http.StatusFound},
		{"see other", http.StatusSeeOther},
		{"temporary redirect", http.StatusTemporaryRedirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := &fakeStore{statuses: []int{http.StatusOK}}
			otherSrv := httptest.NewServer(other)
			defer otherSrv.Close()

			var hits int
			var mu sync.Mutex
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				hits++
				mu.Unlock()
				http.Redirect(w, r, otherSrv.URL+"/login", tt.status)
			}))
			defer srv.Close()

			result := newTestUploader(t, srv).Upload(context.Background(), "music", parseEvents(t, "Jam Night"))

			assert.False(t, result.Succeeded())
			require.Len(t, result.Outcomes, 1)
			assert.Equal(t, models.Failed, result.Outcomes[0].Status)
			assert.Equal(t, tt.status, result.Outcomes[0].StatusCode)
			assert.Contains(t, result.FailureReason(), fmt.Sprintf("HTTP %d", tt.status))
			assert.Equal(t, 1, hits)
			assert.Empty(t, other.puts, "redirect target must not be contacted")
		})
	}
}

func TestUpload_SecondEventFails(t *testing.T) {
	store := &fakeStore{statuses: []int{http.StatusCreated, http.StatusInternalServerError}}
	srv := httptest.NewServer(store)
	defer srv.Close()

	result := newTestUploader(t, srv).Upload(context.Background(), "music", parseEvents(t, "First", "Second"))

	assert.False(t, result.Succeeded())
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, models.Uploaded, result.Outcomes[0].Status)
	assert.Equal(t, models.Failed, result.Outcomes[1].Status)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 1, result.UploadedCount())
	assert.Contains(t, result.FailureReason(), "HTTP 500")
	assert.LessOrEqual(t, len(result.FailureReason()), len("HTTP 500: ")+maxErrorSnippet)
	assert.Len(t, store.puts, 2)
}

func TestUpload_AbortsRemainingEvents(t *testing.T) {
	store := &fakeStore{statuses: []int{http.StatusCreated, http.StatusForbidden, http.StatusCreated}}
	srv := httptest.NewServer(store)
	defer srv.Close()

	result := newTestUploader(t, srv).Upload(context.Background(), "music", parseEvents(t, "One", "Two", "Three"))

	assert.False(t, result.Succeeded())
	assert.Len(t, result.Outcomes, 2)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, store.puts, 2)
}

func TestUpload_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(&fakeStore{})
	u := newTestUploader(t, srv)
	srv.Close()

	result := u.Upload(context.Background(), "music", parseEvents(t, "One", "Two"))

	assert.False(t, result.Succeeded())
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 0, result.Outcomes[0].StatusCode)
	assert.Equal(t, 1, result.Skipped)
	assert.NotEmpty(t, result.Outcomes[0].Reason)
}

func TestUpload_SanitizesDocument(t *testing.T) {
	store := &fakeStore{}
	srv := httptest.NewServer(store)
	defer srv.Close()

	events := parseEvents(t, "Party! 🎉 **Bring snacks** <b>Fun</b>")
	events[0].Props.SetText("LOCATION", "Main St, Springfield; rear")

	result := newTestUploader(t, srv).Upload(context.Background(), "music", events)
	require.True(t, result.Succeeded())
	require.Len(t, store.puts, 1)

	body := store.puts[0].Body
	assert.Contains(t, body, "SUMMARY:Party! Bring snacks Fun")
	assert.Contains(t, body, "LOCATION:Main St, Springfield; rear")
	assert.NotContains(t, body, `\,`)
	assert.NotContains(t, body, `\;`)
	assert.NotContains(t, body, "*")
}

func TestNewUploader_InvalidURL(t *testing.T) {
	_, err := NewUploader(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestCollectionURL(t *testing.T) {
	u, err := NewUploader(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{BaseURL: "https://hub.example.com/cdav/"})
	require.NoError(t, err)
	assert.Equal(t, "https://hub.example.com/cdav/calendars/music/default/", u.CollectionURL("music"))
}

func TestUpload_ResourceUnderCollection(t *testing.T) {
	srv := httptest.NewServer(&fakeStore{})
	defer srv.Close()

	u := newTestUploader(t, srv)
	result := u.Upload(context.Background(), "music", parseEvents(t, "A"))
	require.True(t, result.Succeeded())

	resource := result.Outcomes[0].Resource
	assert.True(t, strings.HasPrefix(resource, u.CollectionURL("music")+"email-event-"), resource)
}
