package skywriter

import (
	"context"
	"fmt"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/util"
)

const likeCollection = "app.bsky.feed.like"

// IsPostLiked reports whether the authenticated user has liked the given post.
func (s *Skywriter) IsPostLiked(ctx context.Context, postURI string) (bool, error) {
	if err := s.requireSession(); err != nil {
		return false, err
	}

	likes, err := bsky.FeedGetLikes(ctx, s.client, "", "", 100, postURI)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrFailedFetch, err)
	}
	for _, like := range likes.Likes {
		if like != nil && like.Actor != nil && like.Actor.Did == s.Self.Did {
			return true, nil
		}
	}
	return false, nil
}

// ToggleLike likes the post if it is not yet liked by the authenticated user,
// or removes the like otherwise. Returns the resulting liked state.
//
// The like record's key is derived from the post URI's trailing path segment,
// the same derivation for creation and deletion. That keeps unlike a single
// delete without a lookup table, assuming at most one like per viewer per
// post and that the backend does not reassign record keys.
func (s *Skywriter) ToggleLike(ctx context.Context, post *PostRef) (bool, error) {
	if err := s.requireSession(); err != nil {
		return false, err
	}

	rkey, err := RecordKeyFromUri(post.Uri)
	if err != nil {
		return false, err
	}

	liked, err := s.IsPostLiked(ctx, post.Uri)
	if err != nil {
		return false, err
	}

	if liked {
		_, err = atproto.RepoDeleteRecord(ctx, s.client, &atproto.RepoDeleteRecord_Input{
			Collection: likeCollection,
			Repo:       s.Self.Did,
			Rkey:       rkey,
		})
		if err != nil {
			return true, fmt.Errorf("failed to remove like: %w", err)
		}
		return false, nil
	}

	_, err = atproto.RepoCreateRecord(ctx, s.client, &atproto.RepoCreateRecord_Input{
		Collection: likeCollection,
		Repo:       s.Self.Did,
		Rkey:       &rkey,
		Record: &lexutil.LexiconTypeDecoder{
			Val: &bsky.FeedLike{
				LexiconTypeID: likeCollection,
				CreatedAt:     time.Now().Format(util.ISO8601),
				Subject: &atproto.RepoStrongRef{
					Uri: post.Uri,
					Cid: post.Cid,
				},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to create like: %w", err)
	}
	return true, nil
}
