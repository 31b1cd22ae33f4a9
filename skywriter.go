package skywriter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/golang-jwt/jwt/v5"
)

const defaultBskyServer = "https://bsky.social"

var (
	ErrBadLogin           = errors.New("bad login credentials")
	ErrBadServer          = errors.New("could not verify server")
	ErrFailedFetch        = errors.New("failed to fetch data")
	ErrBadResponse        = errors.New("bad response from server")
	ErrBadSessionDuration = errors.New("session duration is less than 60 seconds")
	ErrFailedRefresh      = errors.New("failed to refresh session")
	ErrAuthRequired       = errors.New("operation requires an authenticated session")
)

// Skywriter is a client for composing and publishing BlueSky posts and threads.
// It wraps the AtProto XRPC client with session management: the JWT access token
// is cached for the lifetime of the client and refreshed in the background,
// so callers log in once and publish many times.
type Skywriter struct {
	client            *xrpc.Client
	sessionExpiration time.Time
	cancelRefresh     context.CancelFunc

	// ErrorChan receives errors from background operations like token refresh.
	// Users should monitor this channel to handle authentication failures.
	ErrorChan chan error

	// Self contains the authenticated user's profile information, populated after Login().
	Self *User
}

// NewDefaultInstance creates a new Skywriter client using the default BlueSky
// server (bsky.social) and a standard HTTP client.
//
// Example:
//
//	client, err := skywriter.NewDefaultInstance()
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewDefaultInstance() (*Skywriter, error) {
	return NewCustomInstance(context.Background(), defaultBskyServer, new(http.Client))
}

// NewCustomInstance creates a new Skywriter client with custom configuration.
// The server parameter should be a full URL (e.g., "https://bsky.social").
// Returns an error if the server cannot be reached or verified.
func NewCustomInstance(ctx context.Context, server string, client *http.Client) (*Skywriter, error) {
	local := &xrpc.Client{
		Client: client,
		Host:   server,
	}
	if _, err := atproto.ServerDescribeServer(ctx, local); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadServer, err)
	}

	return &Skywriter{
		client:        local,
		ErrorChan:     make(chan error),
		cancelRefresh: nil,
	}, nil
}

// Login authenticates with BlueSky using an identifier (handle or email) and an
// app password. It schedules automatic token refresh and populates Self with
// the authenticated user's profile. The session lives as long as the client;
// call Disconnect to drop it.
func (s *Skywriter) Login(ctx context.Context, identifier string, password string) error {
	authInput := atproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   password,
	}
	authOutput, err := atproto.ServerCreateSession(ctx, s.client, &authInput)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadLogin, err)
	}

	expDate, err := sessionExpiration(authOutput.AccessJwt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	s.sessionExpiration = expDate
	if time.Until(s.sessionExpiration).Seconds() < 60 {
		return ErrBadSessionDuration
	}

	s.client.Auth = &xrpc.AuthInfo{
		AccessJwt:  authOutput.AccessJwt,
		RefreshJwt: authOutput.RefreshJwt,
		Handle:     authOutput.Handle,
		Did:        authOutput.Did,
	}

	s.scheduleSessionRefresh()

	profile, err := bsky.ActorGetProfile(ctx, s.client, authOutput.Handle)
	if err == nil {
		selfUser, err := OldToNewDetailedUser(profile)
		if err == nil {
			s.Self = selfUser
		}
	}

	return nil
}

// Disconnect drops the current session and cancels the background refresh
// timer. The client can be reused by calling Login again.
func (s *Skywriter) Disconnect() {
	if s.cancelRefresh != nil {
		s.cancelRefresh()
		s.cancelRefresh = nil
	}
	s.client.Auth = nil
	s.Self = nil
	s.sessionExpiration = time.Time{}
}

// requireSession guards authenticated operations. Every mutating call checks
// this before touching the network.
func (s *Skywriter) requireSession() error {
	if s.client.Auth == nil || s.Self == nil {
		return ErrAuthRequired
	}
	return nil
}

// sessionExpiration extracts the expiration time from an access token without
// verifying the signature. The server already authenticated us; we only need
// the exp claim to schedule a refresh.
func sessionExpiration(accessJwt string) (time.Time, error) {
	authToken, _, err := jwt.NewParser().ParseUnverified(accessJwt, jwt.MapClaims{})
	if authToken == nil || (err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable)) {
		return time.Time{}, err
	}
	expDate, err := authToken.Claims.GetExpirationTime()
	if expDate == nil || err != nil {
		return time.Time{}, err
	}
	return expDate.Time, nil
}

// updateSession refreshes the session tokens, updates expiration time, and checks the session duration for validity.
func (s *Skywriter) updateSession(ctx context.Context) error {
	authOutput, err := atproto.ServerRefreshSession(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedRefresh, err)
	}

	expDate, err := sessionExpiration(authOutput.AccessJwt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedRefresh, err)
	}

	s.sessionExpiration = expDate
	if time.Until(s.sessionExpiration).Seconds() < 60 {
		return ErrBadSessionDuration
	}

	s.client.Auth = &xrpc.AuthInfo{
		AccessJwt:  authOutput.AccessJwt,
		RefreshJwt: authOutput.RefreshJwt,
		Handle:     authOutput.Handle,
		Did:        authOutput.Did,
	}

	return nil
}

// scheduleSessionRefresh schedules the client to refresh the session token 1 minute before expiration
func (s *Skywriter) scheduleSessionRefresh() {
	refreshCtx, cancel := context.WithCancel(context.Background())
	s.cancelRefresh = cancel
	time.AfterFunc(time.Until(s.sessionExpiration.Add(-time.Minute)), func() {
		select {
		case <-refreshCtx.Done():
			return
		default:
			ctx, cancelOp := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancelOp()

			err := s.updateSession(ctx)
			if err != nil {
				s.ErrorChan <- err
				s.cancelRefresh = nil
			} else {
				s.scheduleSessionRefresh()
			}
		}
	})
}

// RefreshSession manually refreshes the authentication token before its scheduled expiration.
// This cancels any existing refresh timer and schedules a new one.
// Any errors during refresh are sent to ErrorChan rather than returned.
func (s *Skywriter) RefreshSession(ctx context.Context) {
	if s.cancelRefresh != nil {
		s.cancelRefresh()
	}
	err := s.updateSession(ctx)
	if err != nil {
		s.ErrorChan <- err
		s.cancelRefresh = nil
	} else {
		s.scheduleSessionRefresh()
	}
}
