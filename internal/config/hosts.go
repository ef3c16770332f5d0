// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// normalizeURLs rewrites the hosts of the device URL and an http(s) guide
// URL to lower-case ASCII, so internationalized and mixed-case names dial
// the same host. Anything that does not parse as an http(s) URL is left for
// Validate to report.
func normalizeURLs(cfg *Config) error {
	fields := []struct {
		name string
		val  *string
	}{
		{"kodi.url", &cfg.Kodi.URL},
		{"guide.url", &cfg.Guide.URL},
	}
	var errs []error
	for _, f := range fields {
		out, err := normalizeHTTPURL(*f.val)
		if err != nil {
			errs = append(errs, FieldError{Field: f.name, Rule: err.Error(), Value: *f.val})
			continue
		}
		*f.val = out
	}
	return errors.Join(errs...)
}

func normalizeHTTPURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return raw, nil
	}
	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return "", err
	}
	switch port := u.Port(); {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}
	return u.String(), nil
}

func normalizeHost(host string) (string, error) {
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone")
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host: %w", err)
	}
	return strings.ToLower(ascii), nil
}
