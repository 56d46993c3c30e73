package youtube

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	_ "github.com/bdandy/go-socks4"
	"golang.org/x/net/proxy"
)

const httpTimeout = 15 * time.Second

// NewHTTPClient returns the client used for YouTube requests, routed
// through proxyStr when set. Supported schemes are http, https, socks4 and
// socks5.
func NewHTTPClient(proxyStr string) (*http.Client, error) {
	if proxyStr == "" {
		return &http.Client{Timeout: httpTimeout}, nil
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", proxyStr, err)
	}

	var transport *http.Transport
	switch proxyURL.Scheme {
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	case "socks4", "socks5":
		// socks4 is registered with x/net/proxy by the blank import above.
		dialer, err := proxy.FromURL(proxyURL, &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 10 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("%s dialer: %w", proxyURL.Scheme, err)
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}

	return &http.Client{Transport: transport, Timeout: httpTimeout}, nil
}
