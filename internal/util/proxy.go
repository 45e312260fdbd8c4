package util

import (
	"fmt"
	"net/http"
	"net/url"
)

// NewProxyFunc returns the transport proxy function for one egress proxy.
// An empty proxy falls back to the environment (HTTP_PROXY, NO_PROXY, ...).
func NewProxyFunc(rawProxy string) (func(*http.Request) (*url.URL, error), error) {
	if rawProxy == "" {
		return http.ProxyFromEnvironment, nil
	}

	proxyURL, err := url.Parse(rawProxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", rawProxy, err)
	}
	if proxyURL.Scheme == "" || proxyURL.Host == "" {
		return nil, fmt.Errorf("parse proxy %q: missing scheme or host", rawProxy)
	}

	return http.ProxyURL(proxyURL), nil
}

// RedactProxy strips credentials so a proxy URL is safe to log
func RedactProxy(rawProxy string) string {
	proxyURL, err := url.Parse(rawProxy)
	if err != nil || proxyURL.User == nil {
		return rawProxy
	}
	return proxyURL.Redacted()
}
