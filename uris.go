package skywriter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/atproto/syntax"
)

var (
	ErrEmptyUri   = errors.New("empty URI")
	ErrInvalidUri = errors.New("invalid URI")
	ErrNoDid      = errors.New("URI uses a handle, not a DID")
)

// ExtractDidFromUri extracts the DID from an AT URI format: at://did:plc:xyz123/collection/record
// if URI is like at://an.example.handle/app.bsky.feed.post/, returns handle and ErrNoDid
func ExtractDidFromUri(uri string) (string, error) {
	if uri == "" {
		return "", ErrEmptyUri
	}

	if _, err := syntax.ParseATURI(uri); err != nil {
		return "", ErrInvalidUri
	}
	if !strings.HasPrefix(uri, "at://") {
		return "", ErrInvalidUri
	}

	userID := uri[5:]
	// technically, at://an.example.handle is valid, so account for that
	if end := strings.Index(userID, "/"); end > -1 {
		userID = userID[:end]
	}

	if strings.HasPrefix(userID, "did") {
		return userID, nil
	}

	// still return the handle, with an error so callers know it's not a DID
	return userID, ErrNoDid
}

// RecordKeyFromUri derives a record key from the trailing path segment of an
// AT URI. This is the key the like toggle uses for both creating and deleting
// like records, so a round trip always addresses the same record.
func RecordKeyFromUri(uri string) (string, error) {
	if uri == "" {
		return "", ErrEmptyUri
	}
	parsed, err := syntax.ParseATURI(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidUri, err)
	}
	rkey := parsed.RecordKey().String()
	if rkey == "" {
		return "", ErrInvalidUri
	}
	return rkey, nil
}

// ResolveHandleToDID resolves a BlueSky handle to its corresponding DID using the XRPC API
func (s *Skywriter) ResolveHandleToDID(ctx context.Context, handle string) (string, error) {
	output, err := atproto.IdentityResolveHandle(ctx, s.client, handle)
	if err != nil {
		return "", fmt.Errorf("failed to resolve handle to DID: %w", err)
	}
	return output.Did, nil
}

// ExtractOrResolveDidFromUri extracts a DID from an AT URI, resolving handles to DIDs when necessary
func (s *Skywriter) ExtractOrResolveDidFromUri(ctx context.Context, uri string) (string, error) {
	userID, err := ExtractDidFromUri(uri)
	if err != nil {
		if errors.Is(err, ErrNoDid) {
			return s.ResolveHandleToDID(ctx, userID)
		}
		return "", err
	}
	return userID, nil
}
