// Package timestamp implements two timestamp clients: a legacy
// Authenticode timestamp client (base64 TimeStampRequest over HTTP) and
// an RFC 3161 client (DER TimeStampReq over HTTP), either of which
// attaches its result to a signer.Message as an unauthenticated
// countersignature attribute. Grounded on original_source/osslsigncode.c's
// add_timestamp/add_timestamp_authenticode/add_timestamp_rfc3161, reworked
// from libcurl onto net/http and golang.org/x/net/proxy.
package timestamp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/saferwall/authsigncode/signer"
)

// New builds the Timestamper hook the -t/-ts CLI flags select: -t (legacy)
// takes priority. The CLI enforces -t/-ts mutual exclusion, so in practice
// only one of legacyURL/rfc3161URL is ever non-empty.
func New(legacyURL, rfc3161URL, proxyAddr string) func(*signer.Message) error {
	switch {
	case legacyURL != "":
		c := LegacyClient{URL: legacyURL, Proxy: proxyAddr}
		return c.Timestamp
	case rfc3161URL != "":
		c := RFC3161Client{URL: rfc3161URL, Proxy: proxyAddr}
		return c.Timestamp
	default:
		return nil
	}
}

// newHTTPClient builds an http.Client honoring proxyAddr's scheme prefix
// the way the reference tool's `-p` flag does: "http:" selects an HTTP
// CONNECT/forward proxy, "socks:" selects a SOCKS5 dialer.
func newHTTPClient(proxyAddr string) (*http.Client, error) {
	if proxyAddr == "" {
		return &http.Client{Timeout: 30 * time.Second}, nil
	}

	switch {
	case strings.HasPrefix(proxyAddr, "http:"):
		u, err := url.Parse(proxyAddr)
		if err != nil {
			return nil, fmt.Errorf("timestamp: parse proxy url: %w", err)
		}
		return &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}, nil

	case strings.HasPrefix(proxyAddr, "socks:"):
		addr := strings.TrimPrefix(proxyAddr, "socks:")
		addr = strings.TrimPrefix(addr, "//")
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("timestamp: create socks5 dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("timestamp: socks5 dialer does not support context dialing")
		}
		return &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					return contextDialer.DialContext(ctx, network, address)
				},
			},
		}, nil

	default:
		return nil, fmt.Errorf("timestamp: unrecognized proxy scheme %q, expected http: or socks:", proxyAddr)
	}
}

func postAndRead(ctx context.Context, client *http.Client, endpoint string, body []byte, contentType, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("timestamp: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "Transport")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timestamp: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("timestamp: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timestamp: server returned status %d", resp.StatusCode)
	}
	return respBody, nil
}
