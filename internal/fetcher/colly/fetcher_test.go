package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/chescofire/cadwatch/internal/cad"
)

func TestFetchRoundTrip(t *testing.T) {
	t.Parallel()

	var gotAgent string
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		gotAgent = r.UserAgent()
		_, _ = w.Write([]byte("<html><body>Fire Incidents</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{BoardURL: srv.URL, UserAgent: "cadwatch-test/1.0", Timeout: 5 * time.Second})

	body, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(body), "Fire Incidents")
	require.Equal(t, "cadwatch-test/1.0", gotAgent)

	// The board is polled repeatedly; a second fetch of the same URL must work.
	_, err = f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, hits)
}

func TestFetchCommentsRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/WebCad/LiveCADComments.asp", r.URL.Path)
		_, _ = w.Write([]byte("ENG51> On Scene"))
	}))
	defer srv.Close()

	f := New(Config{BoardURL: srv.URL, Timeout: 5 * time.Second})
	body, err := f.FetchComments(context.Background(), srv.URL+"/WebCad/LiveCADComments.asp")
	require.NoError(t, err)
	require.Equal(t, "ENG51> On Scene", string(body))
}

func TestFetchHTTPErrorYieldsFetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{BoardURL: srv.URL, Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background())

	var ferr *cad.FetchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, http.StatusServiceUnavailable, ferr.StatusCode)
	require.Equal(t, srv.URL, ferr.URL)
}

func TestFetchUnreachableHostYieldsFetchError(t *testing.T) {
	t.Parallel()

	f := New(Config{BoardURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := f.Fetch(context.Background())

	var ferr *cad.FetchError
	require.ErrorAs(t, err, &ferr)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{BoardURL: srv.URL, Timeout: 30 * time.Second})
	_, err := f.Fetch(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var (
		body     []byte
		status   int
		fetchErr error
	)

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &body, &status, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("listing"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "listing", string(body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.Equal(t, http.StatusBadGateway, status)
	require.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
