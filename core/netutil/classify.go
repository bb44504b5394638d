package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"regexp"
)

var secretRe = regexp.MustCompile(`(bot[0-9]+:[A-Za-z0-9_-]+|Bearer [A-Za-z0-9._-]+|access_token=[^&\s]+)`)

// ClassifyError names the transport failure class of err for logs.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return "dial"
		}
		if opErr.Op == "read" || opErr.Op == "write" {
			if kind := ClassifyError(opErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
		if kind := ClassifyError(urlErr.Err); kind != "" && kind != "unknown" {
			return kind
		}
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	return "unknown"
}

// SanitizeError renders err without bot tokens or bearer credentials.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return secretRe.ReplaceAllStringFunc(err.Error(), func(m string) string {
		switch {
		case len(m) > 3 && m[:3] == "bot":
			return "bot<redacted>"
		case len(m) > 7 && m[:7] == "Bearer ":
			return "Bearer <redacted>"
		default:
			return "access_token=<redacted>"
		}
	})
}
