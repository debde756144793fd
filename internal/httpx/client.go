// Package httpx builds the HTTPS-only clients used for translation and model downloads.
package httpx

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// New returns a client that only speaks https, with a dial/TLS timeout of
// connect and an overall request timeout of total (body included).
func New(connect, total time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	return &http.Client{
		Transport:     transport,
		Timeout:       total,
		CheckRedirect: httpsOnlyRedirect,
	}
}

func httpsOnlyRedirect(req *http.Request, via []*http.Request) error {
	if req.URL.Scheme != "https" {
		return fmt.Errorf("refusing redirect to %s URL", req.URL.Scheme)
	}
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	return nil
}

// RequireHTTPS validates that raw is an absolute https URL.
func RequireHTTPS(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an https URL", raw)
	}
	return u, nil
}
