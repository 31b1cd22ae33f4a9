package skywriter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/samber/lo"
)

var (
	ErrNilUser     = errors.New("nil user")
	ErrInvalidUser = errors.New("invalid user")
)

// User represents a BlueSky user profile that can contain either basic or detailed information.
// Optional fields use pointers for nil-safe handling. Detailed info (follower counts, etc.) may be nil for basic profiles.
type User struct {
	Avatar         *string    `json:"avatar,omitempty"`
	Banner         *string    `json:"banner,omitempty"`
	CreatedAt      time.Time  `json:"createdAt,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Did            string     `json:"did"`
	DisplayName    *string    `json:"displayName,omitempty"`
	Handle         string     `json:"handle"`
	IndexedAt      *time.Time `json:"indexedAt,omitempty"`
	FollowersCount *int       `json:"followersCount,omitempty"`
	FollowsCount   *int       `json:"followsCount,omitempty"`
	PinnedPost     *PostRef   `json:"pinnedPost,omitempty"`
	PostsCount     *int       `json:"postsCount,omitempty"`
	RawBasic       *bsky.ActorDefs_ProfileViewBasic
	Raw            *bsky.ActorDefs_ProfileView
	RawDetailed    *bsky.ActorDefs_ProfileViewDetailed
}

func (u *User) String() string {
	return fmt.Sprintf("User{DID: %s, Handle: %s}", u.Did, u.Handle)
}

// parseOptionalTime parses an RFC3339 timestamp that the API may omit.
func parseOptionalTime(value *string) (time.Time, error) {
	if value == nil {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, *value)
}

func OldToNewUserBasic(oldUser *bsky.ActorDefs_ProfileViewBasic) (*User, error) {
	if oldUser == nil {
		return nil, ErrNilUser
	}
	createdAt, err := parseOptionalTime(oldUser.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}
	return &User{
		Avatar:      oldUser.Avatar,
		CreatedAt:   createdAt,
		Did:         oldUser.Did,
		DisplayName: oldUser.DisplayName,
		Handle:      oldUser.Handle,
		RawBasic:    oldUser,
	}, nil
}

func OldToNewUser(oldUser *bsky.ActorDefs_ProfileView) (*User, error) {
	if oldUser == nil {
		return nil, ErrNilUser
	}
	createdAt, err := parseOptionalTime(oldUser.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}
	indexedAt, err := parseOptionalTime(oldUser.IndexedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}
	return &User{
		Avatar:      oldUser.Avatar,
		CreatedAt:   createdAt,
		Description: oldUser.Description,
		Did:         oldUser.Did,
		DisplayName: oldUser.DisplayName,
		Handle:      oldUser.Handle,
		IndexedAt:   &indexedAt,
		Raw:         oldUser,
	}, nil
}

// OldToNewDetailedUser converts detailed bsky profile structs into User structs
func OldToNewDetailedUser(oldUser *bsky.ActorDefs_ProfileViewDetailed) (*User, error) {
	if oldUser == nil {
		return nil, ErrNilUser
	}
	createdAt, err := parseOptionalTime(oldUser.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}
	indexedAt, err := parseOptionalTime(oldUser.IndexedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}

	return &User{
		Avatar:         oldUser.Avatar,
		Banner:         oldUser.Banner,
		CreatedAt:      createdAt,
		Description:    oldUser.Description,
		Did:            oldUser.Did,
		DisplayName:    oldUser.DisplayName,
		FollowersCount: lo.ToPtr(int(lo.FromPtr(oldUser.FollowersCount))),
		FollowsCount:   lo.ToPtr(int(lo.FromPtr(oldUser.FollowsCount))),
		Handle:         oldUser.Handle,
		IndexedAt:      &indexedAt,
		PinnedPost:     OldToNewRefPointer(oldUser.PinnedPost),
		PostsCount:     lo.ToPtr(int(lo.FromPtr(oldUser.PostsCount))),
		RawDetailed:    oldUser,
	}, nil
}

// GetProfile retrieves detailed profile information for a specific user.
// The actor parameter can be either a handle (e.g., "alice.bsky.social") or a DID.
func (s *Skywriter) GetProfile(ctx context.Context, actor string) (*User, error) {
	profile, err := bsky.ActorGetProfile(ctx, s.client, actor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedFetch, err)
	}
	return OldToNewDetailedUser(profile)
}
