package skywriter

import (
	"context"
	"fmt"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/samber/lo"
)

// FeedGenerator describes a feed a user can browse: its identifiers plus
// display metadata.
type FeedGenerator struct {
	Uri         string `json:"uri"`
	Cid         string `json:"cid"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	LikeCount   int    `json:"likeCount"`
	Raw         *bsky.FeedDefs_GeneratorView
}

// GetFeedGenerators fetches descriptors for the given feed URIs.
func (s *Skywriter) GetFeedGenerators(ctx context.Context, feedURIs []string) ([]*FeedGenerator, error) {
	result, err := bsky.FeedGetFeedGenerators(ctx, s.client, feedURIs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedFetch, err)
	}

	generators := make([]*FeedGenerator, 0, len(result.Feeds))
	for _, feed := range result.Feeds {
		if feed == nil {
			continue
		}
		generators = append(generators, &FeedGenerator{
			Uri:         feed.Uri,
			Cid:         feed.Cid,
			DisplayName: feed.DisplayName,
			Description: lo.FromPtr(feed.Description),
			AvatarURL:   lo.FromPtr(feed.Avatar),
			LikeCount:   int(lo.FromPtr(feed.LikeCount)),
			Raw:         feed,
		})
	}
	return generators, nil
}

// GetFeed returns up to limit posts from a feed generator, in feed order.
func (s *Skywriter) GetFeed(ctx context.Context, feedURI string, limit int) ([]*FeedPost, error) {
	result, err := bsky.FeedGetFeed(ctx, s.client, "", feedURI, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedFetch, err)
	}

	posts := make([]*FeedPost, 0, len(result.Feed))
	for _, item := range result.Feed {
		if item == nil || item.Post == nil {
			continue
		}
		post, err := s.OldToNewPostView(item.Post)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPost, err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}
