package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/resilience"
)

func TestLineBreakRoundTrip(t *testing.T) {
	for _, s := range []string{"a\nb\r\nc", "", "plain", "\r\r\n\n", "trailing\n"} {
		enc := EncodeLineBreaks(s)
		if strings.ContainsAny(enc, "\r\n") {
			t.Errorf("EncodeLineBreaks(%q) = %q still has line breaks", s, enc)
		}
		if got := DecodeLineBreaks(enc); got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"single segment", `[[["Bonjour","Hello",null,null,10]],null,"en"]`, "Bonjour", false},
		{"concatenates", `[[["Bonjour\u200b","Hello\u200b"],["le monde","world"]],null,"en"]`, "Bonjour\u200ble monde", false},
		{"empty list", `[[],null,"en"]`, "", false},
		{"not array", `{"error":"quota"}`, "", true},
		{"no segments", `[null,null,"en"]`, "", true},
		{"segment without text", `[[[null,"Hello"]]]`, "", true},
		{"garbage", `<html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse([]byte(tt.body))
			if tt.wantErr {
				if !apperrors.IsCode(err, apperrors.TranslationParseError) {
					t.Errorf("err = %v, want TRANSLATION_PARSE_ERROR", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseResponse = (%q, %v), want %q", got, err, tt.want)
			}
		})
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)
	c, err := New(append([]Option{WithEndpoint(srv.URL + "/translate_a/single"), WithHTTPClient(srv.Client())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTranslate(t *testing.T) {
	var query atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		q := r.URL.Query().Get("q")
		parts := strings.Split(q, lineFeedMark)
		fmt.Fprintf(w, `[[["Bonjour%s","%s"],["le monde","%s"]],null,"en"]`, "\\u200b", parts[0], parts[1])
	})

	got, err := c.Translate(context.Background(), "Hello\nworld", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Bonjour\nle monde" {
		t.Errorf("Translate = %q, want line break restored", got)
	}

	q := query.Load().(url.Values)
	for k, want := range map[string]string{"client": "gtx", "sl": "auto", "tl": "fr", "dt": "t", "q": "Hello\u200bworld"} {
		if got := q.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}
}

func TestTranslateEmptySkipsRequest(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	got, err := c.Translate(context.Background(), "", "fr")
	if err != nil || got != "" || calls.Load() != 0 {
		t.Errorf("Translate(\"\") = (%q, %v) with %d calls", got, err, calls.Load())
	}
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    apperrors.Code
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }, apperrors.TranslationUnavailable},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }, apperrors.TranslationUnavailable},
		{"bad shape", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"sentences":[]}`) }, apperrors.TranslationParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Translate(context.Background(), "Hello", "fr")
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestTranslateTimeout(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Timeout = 20 * time.Millisecond
	c, err := New(WithEndpoint(srv.URL), WithHTTPClient(hc))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Translate(context.Background(), "Hello", "fr"); !apperrors.IsCode(err, apperrors.TranslationUnavailable) {
		t.Errorf("err = %v, want TRANSLATION_UNAVAILABLE", err)
	}
}

func TestTranslateBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithBreaker(resilience.New("translate", resilience.Config{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})))

	for i := 0; i < 4; i++ {
		_, err := c.Translate(context.Background(), "Hello", "fr")
		if !apperrors.IsCode(err, apperrors.TranslationUnavailable) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("endpoint hit %d times, want 2 before breaker opened", calls.Load())
	}
}

func TestNewRejectsPlainHTTP(t *testing.T) {
	for _, u := range []string{"http://translate.googleapis.com/translate_a/single", "://bad", "https://"} {
		if _, err := New(WithEndpoint(u)); !apperrors.IsCode(err, apperrors.ConfigInvalid) {
			t.Errorf("New(%q) err = %v, want CONFIG_INVALID", u, err)
		}
	}
}
