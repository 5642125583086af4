package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/penshort/deeplink/pkg/attribution"
	"github.com/penshort/deeplink/pkg/fingerprint"
	"github.com/penshort/deeplink/pkg/session"
)

var testFingerprint = fingerprint.Fingerprint{
	OS:           "linux",
	OSVersion:    "6.8.0",
	ScreenSize:   "0 x 0",
	Model:        "x86_64",
	DeviceID:     "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	LanguageCode: "en",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noBackoff(int) time.Duration { return 0 }

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(discardLogger()), WithBackoff(noBackoff)}, opts...)
	c, err := New(srv.URL+"/", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://x.test", "x.test/api", "http://"} {
		if _, err := New(raw); !errors.Is(err, ErrBaseURL) {
			t.Errorf("New(%q) err = %v, want ErrBaseURL", raw, err)
		}
	}
}

func TestVerify_RequestShape(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/verify" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get(HeaderAPIKey); got != "live-key" {
			t.Errorf("X-API-Key = %q", got)
		}
		if got := r.Header.Get(HeaderRequestID); len(got) != 26 {
			t.Errorf("X-Request-ID = %q, want a ULID", got)
		}
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "deeplink-go/") {
			t.Errorf("User-Agent = %q", got)
		}

		var fp fingerprint.Fingerprint
		if err := json.NewDecoder(r.Body).Decode(&fp); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if fp != testFingerprint {
			t.Errorf("fingerprint = %+v", fp)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"isFirstSession":false,"link":"https://x.test/offer"}`)
	})

	resp, err := c.Verify(context.Background(), testFingerprint, "live-key")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.IsFirstSession == nil || *resp.IsFirstSession {
		t.Errorf("IsFirstSession = %v", resp.IsFirstSession)
	}
	if resp.Link == nil || *resp.Link != "https://x.test/offer" {
		t.Errorf("Link = %v", resp.Link)
	}
}

func TestVerify_EmptyBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	resp, err := c.Verify(context.Background(), testFingerprint, "k")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.IsFirstSession != nil || resp.Link != nil {
		t.Errorf("resp = %+v, want empty", resp)
	}
}

func TestVerify_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var firstID atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if calls.Add(1) == 1 {
			firstID.Store(id)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if id != firstID.Load() {
			t.Errorf("request id changed between tries: %q", id)
		}
		io.WriteString(w, `{"isFirstSession":true}`)
	})

	resp, err := c.Verify(context.Background(), testFingerprint, "k")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.IsFirstSession == nil || !*resp.IsFirstSession {
		t.Errorf("IsFirstSession = %v", resp.IsFirstSession)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestVerify_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}, WithMaxAttempts(4))

	_, err := c.Verify(context.Background(), testFingerprint, "k")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v, want StatusError 502", err)
	}
	if statusErr.Body != "boom" {
		t.Errorf("Body = %q", statusErr.Body)
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
}

func TestVerify_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Verify(context.Background(), testFingerprint, "k")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want StatusError 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestVerify_Unauthorized(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Verify(context.Background(), testFingerprint, "bad-key")
	if !IsUnauthorized(err) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if errors.Is(err, attribution.ErrMissingCredentials) {
		t.Error("a sent credential should not report missing credentials")
	}

	_, err = c.Verify(context.Background(), testFingerprint, "")
	if !IsUnauthorized(err) || !errors.Is(err, attribution.ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrUnauthorized wrapping ErrMissingCredentials", err)
	}
}

func TestVerify_MalformedResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"isFirstSession":`)
	})

	if _, err := c.Verify(context.Background(), testFingerprint, "k"); err == nil {
		t.Error("expected decode error")
	}
}

func TestVerify_MalformedLinkField(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"isFirstSession":false,"link":42}`)
	})

	resp, err := c.Verify(context.Background(), testFingerprint, "k")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.Link != nil {
		t.Errorf("Link = %q, want nil", *resp.Link)
	}
	if resp.IsFirstSession == nil || *resp.IsFirstSession {
		t.Errorf("IsFirstSession = %v, want false", resp.IsFirstSession)
	}
}

func TestVerify_MistypedFieldsDropped(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"isFirstSession":"yes","link":null,"extra":[1,2]}`)
	})

	resp, err := c.Verify(context.Background(), testFingerprint, "k")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if resp.IsFirstSession != nil || resp.Link != nil {
		t.Errorf("resp = %+v, want empty", resp)
	}
}

func TestStatusError_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("a", maxErrorBody-1) + "é" + "tail"
	err := statusError(http.StatusBadGateway, []byte(body), "k")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if !utf8.ValidString(statusErr.Body) {
		t.Errorf("Body is not valid UTF-8: %q", statusErr.Body[len(statusErr.Body)-4:])
	}
	if len(statusErr.Body) != maxErrorBody-1 {
		t.Errorf("len(Body) = %d, want %d", len(statusErr.Body), maxErrorBody-1)
	}
}

func TestVerify_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusInternalServerError)
	}, WithBackoff(func(int) time.Duration { return time.Minute }))

	_, err := c.Verify(ctx, testFingerprint, "k")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCreateLink(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/links" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var params map[string]any
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode: %v", err)
		}
		if params["path"] != "/product/123" || params["utmSource"] != "newsletter" {
			t.Errorf("params = %v", params)
		}
		io.WriteString(w, `{"url":"https://go.x.test/01HZX"}`)
	})

	params, ok := attribution.NewLinkConfiguration("/product/123", "promo").
		WithMarketingSource("newsletter").
		BuildParameters()
	if !ok {
		t.Fatal("BuildParameters failed")
	}

	got, err := c.CreateLink(context.Background(), params, "k")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if got != "https://go.x.test/01HZX" {
		t.Errorf("url = %q", got)
	}
}

func TestCreateLink_NoURL(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"abc"}`)
	})

	got, err := c.CreateLink(context.Background(), map[string]any{"path": "/p"}, "k")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if got != "" {
		t.Errorf("url = %q, want empty", got)
	}
}

func TestCreateLink_NonStringURL(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"url":7}`)
	})

	got, err := c.CreateLink(context.Background(), map[string]any{"path": "/p"}, "k")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if got != "" {
		t.Errorf("url = %q, want empty", got)
	}
}

func TestCreateLink_UnencodableParams(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})

	if _, err := c.CreateLink(context.Background(), map[string]any{"f": func() {}}, "k"); err == nil {
		t.Error("expected encode error")
	}
}

func TestCoordinatorOverHTTP(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"url":"not a url"}`)
	})

	tracker := session.NewTracker(session.NewMemoryStore(), discardLogger())
	coord := attribution.NewCoordinator(c, tracker,
		attribution.WithLogger(discardLogger()),
		attribution.WithFingerprintProvider(fingerprint.Static(testFingerprint)),
	)
	defer coord.Close()

	_, err := coord.CreateLink(context.Background(), attribution.NewLinkConfiguration("/p", "id"))
	if !errors.Is(err, attribution.ErrInvalidURL) {
		t.Errorf("err = %v, want ErrInvalidURL", err)
	}
}

func TestCoordinatorOverHTTP_MalformedLink(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"isFirstSession":false,"link":42}`)
	})

	store := session.NewMemoryStore()
	tracker := session.NewTracker(store, discardLogger())
	coord := attribution.NewCoordinator(c, tracker,
		attribution.WithLogger(discardLogger()),
		attribution.WithFingerprintProvider(fingerprint.Static(testFingerprint)),
	)
	defer coord.Close()
	coord.ClearAttributionData()

	type result struct {
		data *attribution.AttributionData
		err  error
	}
	results := make(chan result, 1)
	coord.Configure(attribution.ModeLive, func(data *attribution.AttributionData, err error) {
		results <- result{data, err}
	})

	var res result
	select {
	case res = <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
	if res.err != nil {
		t.Fatalf("err = %v, want nil", res.err)
	}
	if res.data.IsFirstSession() {
		t.Error("IsFirstSession = true, want server answer false")
	}
	if _, ok := res.data.OriginURL(); ok {
		t.Error("malformed link should mean no destination")
	}
	if _, ok, _ := store.Get(context.Background(), session.MarkerKey); !ok {
		t.Error("marker should be written after server asserted a returning install")
	}
}
