package skywriter

import (
	"errors"
	"net"
	"net/url"

	"github.com/bluesky-social/indigo/xrpc"
)

// ErrorKind classifies failures into the buckets a frontend cares about.
// Callers map kinds to user-facing messages instead of parsing error text.
type ErrorKind int

const (
	// ErrorKindGeneric covers anything without a more specific classification.
	ErrorKindGeneric ErrorKind = iota
	// ErrorKindConfig means required settings (credentials, webhook URL) are missing.
	ErrorKindConfig
	// ErrorKindAuth means the session is missing or the credentials were rejected.
	ErrorKindAuth
	// ErrorKindUnreachable means the network transport failed before any response.
	ErrorKindUnreachable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConfig:
		return "Configuration Error"
	case ErrorKindAuth:
		return "Authentication Error"
	case ErrorKindUnreachable:
		return "Network Unreachable"
	default:
		return "Generic Error"
	}
}

var (
	ErrMissingCredentials = errors.New("missing identifier or app password")
	ErrMissingWebhookURL  = errors.New("missing webhook URL")
)

// Classify inspects an error chain and returns its kind. Classification is
// structural (sentinel errors, xrpc status codes, transport error types),
// never based on message substrings.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindGeneric
	}
	if errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrMissingWebhookURL) {
		return ErrorKindConfig
	}
	if errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrBadLogin) {
		return ErrorKindAuth
	}
	var xrpcErr *xrpc.Error
	if errors.As(err, &xrpcErr) {
		switch xrpcErr.StatusCode {
		case 401, 403:
			return ErrorKindAuth
		}
		return ErrorKindGeneric
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorKindUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorKindUnreachable
	}
	return ErrorKindGeneric
}
