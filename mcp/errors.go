package mcp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrorKind classifies connection failures.
type ErrorKind string

const (
	// KindInvalidAddress means the address was rejected before any network I/O.
	KindInvalidAddress ErrorKind = "invalid_address"
	// KindConnectionFailed means the transport or the MCP handshake failed.
	KindConnectionFailed ErrorKind = "connection_failed"
)

// ConnectionError is returned by Open and Connect.
type ConnectionError struct {
	Kind    ErrorKind
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	switch e.Kind {
	case KindInvalidAddress:
		return fmt.Sprintf("mcp: invalid address %q: %v", e.Address, e.Err)
	default:
		if e.Address == "" {
			return fmt.Sprintf("mcp: connect: %v", e.Err)
		}
		return fmt.Sprintf("mcp: connect %s: %v", e.Address, e.Err)
	}
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsKind reports whether err is a ConnectionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) && connErr.Kind == kind
}

// NormalizeAddress turns a provider address into an absolute http(s) URL.
// Addresses without a scheme default to https.
func NormalizeAddress(address string) (string, error) {
	s := strings.TrimSpace(address)
	if s == "" {
		return "", errors.New("address is empty")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", errors.New("missing host")
	}
	return u.String(), nil
}
