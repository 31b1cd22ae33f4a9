package skywriter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/util"
)

var ErrEmptyThread = errors.New("thread has no posts")

// CreateThread publishes the bodies in order as a reply chain: the first
// created post becomes the thread root and every subsequent post replies to
// the previous one with that fixed root. Facets are detected automatically
// for every segment.
//
// Submission is not transactional. If segment k fails, segments 1..k-1 stay
// published; the refs created so far are returned together with the error so
// the caller can surface or link the partial thread.
func (s *Skywriter) CreateThread(ctx context.Context, bodies []string) ([]*PostRef, error) {
	segments := make([]*PostDraft, len(bodies))
	for i, body := range bodies {
		segments[i] = &PostDraft{Text: body}
	}
	return s.createThreadSegments(ctx, segments)
}

// createThreadSegments is the chaining pipeline shared by CreateThread and the
// composer. The first segment carries its manual link ranges and preview
// metadata; later segments get automatic facets only.
func (s *Skywriter) createThreadSegments(ctx context.Context, segments []*PostDraft) ([]*PostRef, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyThread
	}
	if err := s.requireSession(); err != nil {
		return nil, err
	}
	for _, segment := range segments {
		if err := ValidatePostText(segment.Text); err != nil {
			return nil, err
		}
	}

	var refs []*PostRef
	var root, parent *PostRef

	for i, segment := range segments {
		var manual []LinkRange
		var meta *LinkMetadata
		if i == 0 {
			manual = segment.LinkRanges
			meta = segment.Metadata
		}

		facets, err := s.buildFacets(ctx, segment.Text, manual)
		if err != nil {
			return refs, fmt.Errorf("failed to build facets for segment %d: %w", i+1, err)
		}

		post := &bsky.FeedPost{
			Text:      segment.Text,
			CreatedAt: time.Now().Format(util.ISO8601),
		}
		if len(facets) > 0 {
			post.Facets = facets
		}
		if meta != nil {
			post.Embed = s.buildExternalEmbed(ctx, meta)
		}
		if parent != nil {
			post.Reply = &bsky.FeedPost_ReplyRef{
				Root: &atproto.RepoStrongRef{
					Uri: root.Uri,
					Cid: root.Cid,
				},
				Parent: &atproto.RepoStrongRef{
					Uri: parent.Uri,
					Cid: parent.Cid,
				},
			}
		}

		ref, err := s.createPostRecord(ctx, post)
		if err != nil {
			return refs, fmt.Errorf("thread segment %d failed: %w", i+1, err)
		}
		refs = append(refs, ref)

		if root == nil {
			root = ref
		}
		parent = ref
	}

	return refs, nil
}
