// Package translate calls the public gtx translation endpoint.
package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/httpx"
	"github.com/transcendia/platform/internal/resilience"
)

const (
	DefaultEndpoint       = "https://translate.googleapis.com/translate_a/single"
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 20 * time.Second

	maxResponseBytes = 1 << 20
)

// Translator turns text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Client is the gtx Translator.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *resilience.Breaker
}

// Option customises a Client.
type Option func(*Client)

// WithEndpoint overrides the endpoint URL. It must be https.
func WithEndpoint(u string) Option { return func(c *Client) { c.endpoint = u } }

// WithHTTPClient replaces the default HTTPS-only client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeouts replaces the default connect and total timeouts.
func WithTimeouts(connect, total time.Duration) Option {
	return func(c *Client) { c.http = httpx.New(connect, total) }
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *resilience.Breaker) Option { return func(c *Client) { c.breaker = b } }

// New builds a client with the default connect/total timeouts.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		endpoint: DefaultEndpoint,
		breaker:  resilience.New("translate", resilience.TranslateConfig()),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = httpx.New(DefaultConnectTimeout, DefaultTimeout)
	}
	if _, err := httpx.RequireHTTPS(c.endpoint); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "translation endpoint")
	}
	return c, nil
}

// Translate sends text to the endpoint with the source language auto-detected.
// Line breaks survive the round trip. Empty text is returned without a request.
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", EncodeLineBreaks(text))

	body, err := resilience.ExecuteWithResult(c.breaker, func() ([]byte, error) {
		return c.get(ctx, c.endpoint+"?"+q.Encode())
	})
	if errors.Is(err, resilience.ErrOpen) {
		return "", apperrors.Wrap(err, apperrors.TranslationUnavailable, "translation endpoint backing off")
	}
	if err != nil {
		return "", err
	}

	translated, err := ParseResponse(body)
	if err != nil {
		return "", err
	}
	return DecodeLineBreaks(translated), nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TranslationUnavailable, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TranslationUnavailable, "translation request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, apperrors.Newf(apperrors.TranslationUnavailable, "translation endpoint returned %s", resp.Status).
			WithMetadata("status", fmt.Sprint(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TranslationUnavailable, "read translation response")
	}
	return body, nil
}

// ParseResponse concatenates the translated segments of a gtx response:
// root[0] is a list of [translated, original, ...] tuples.
func ParseResponse(body []byte) (string, error) {
	root := jsoniter.Get(body)
	if root.ValueType() != jsoniter.ArrayValue {
		return "", apperrors.New(apperrors.TranslationParseError, "response is not a JSON array")
	}
	segments := root.Get(0)
	if segments.ValueType() != jsoniter.ArrayValue {
		return "", apperrors.New(apperrors.TranslationParseError, "response has no segment list")
	}

	var b strings.Builder
	for i := 0; i < segments.Size(); i++ {
		seg := segments.Get(i, 0)
		if seg.ValueType() != jsoniter.StringValue {
			return "", apperrors.Newf(apperrors.TranslationParseError, "segment %d has no translated text", i)
		}
		b.WriteString(seg.ToString())
	}
	return b.String(), nil
}
