package skywriter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/util"
	"github.com/samber/lo"
)

var (
	ErrNilFacet     = errors.New("nil facet")
	ErrNilPost      = errors.New("nil post")
	ErrInvalidFacet = errors.New("invalid facet")
	ErrInvalidPost  = errors.New("invalid post")
	ErrPostTooLong  = errors.New("post exceeds the character limit")
	ErrEmptyPost    = errors.New("post has no text")
)

const (
	// MaxPostGraphemes is BlueSky's visible-character cap per post.
	MaxPostGraphemes = 300
	// MaxPostBytes is the byte cap on the UTF-8 encoded post text.
	MaxPostBytes = 3000

	postCollection = "app.bsky.feed.post"
)

// PostRef provides a content-addressed reference to a BlueSky post.
// The Uri points to the post's location, while the Cid is a cryptographic hash of the post content.
type PostRef struct {
	Cid string `json:"cid"` // hash of the content of the post
	Uri string `json:"uri"` // pointer to the location of the post
}

// IsValid validates the format of both the Cid and Uri. It does not check if they actually work/exist, just that they
// are formatted correctly
func (ref *PostRef) IsValid() bool {
	if _, err := syntax.ParseCID(ref.Cid); err != nil {
		return false
	}
	if _, err := syntax.ParseATURI(ref.Uri); err != nil {
		return false
	}
	return true
}

// OldToNewRefPointer converts a pointer to the old reference to a pointer to the new reference or nil
func OldToNewRefPointer(oldRef *atproto.RepoStrongRef) *PostRef {
	if oldRef == nil {
		return nil
	}
	return &PostRef{
		Cid: oldRef.Cid,
		Uri: oldRef.Uri,
	}
}

// ReplyInfo contains thread information for posts that are replies.
// ReplyTarget is the immediate parent post, while ReplyRoot is the top-level post in the thread.
type ReplyInfo struct { // nil if not a reply
	ReplyTarget *PostRef `json:"replyTarget"` // post that this post is replying to
	ReplyRoot   *PostRef `json:"replyRoot"`   // top-level post the ReplyTarget is under
}

// FeedPost represents a BlueSky post with all its content and metadata.
// This includes the post text, rich text formatting, creation time, language, and thread information.
// Some fields like Uri, Cid, and Author may be populated depending on the context where the post was retrieved.
type FeedPost struct {
	Uri         string          `json:"uri"`    // may be empty
	Cid         string          `json:"cid"`    // may be empty
	Author      *User           `json:"author"` // may be nil
	CreatedAt   *time.Time      `json:"createdAt"`
	IndexedAt   *time.Time      `json:"indexedAt"`
	Facets      []RichTextFacet `json:"facets"`
	Text        string          `json:"text"`
	Tags        []string        `json:"tags"`
	Languages   []string        `json:"languages"`
	ReplyInfo   *ReplyInfo      `json:"replyInfo"`
	LikeCount   *int            `json:"likeCount"`
	QuoteCount  *int            `json:"quoteCount"`
	ReplyCount  *int            `json:"replyCount"`
	RepostCount *int            `json:"repostCount"`
	Embed       *Embed          `json:"embed,omitempty"`
	Raw         *bsky.FeedPost
	RawDetailed *bsky.FeedDefs_PostView
}

func (p FeedPost) String() string {
	timestamp := p.CreatedAt.Format("02 Jan 2006 @ 15:04")
	safeText := strings.ReplaceAll(p.Text, "\n", "\\n")
	replyText := ""
	if p.ReplyInfo != nil {
		replyText = ", ReplyTo: " + p.ReplyInfo.ReplyTarget.Uri
	}
	return fmt.Sprintf("FeedPost{Timestamp: %s, Text: '%s%s'}", timestamp, safeText, replyText)
}

// ValidatePostText checks the draft text against BlueSky's limits.
func ValidatePostText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyPost
	}
	if utf8.RuneCountInString(text) > MaxPostGraphemes {
		return ErrPostTooLong
	}
	if len(text) > MaxPostBytes {
		return ErrPostTooLong
	}
	return nil
}

// CreatePost publishes a single post. Manual link ranges become link facets
// alongside automatically detected ones, and metadata (when present) becomes
// an external-link embed; a failed thumbnail upload degrades to an embed
// without a thumbnail instead of aborting.
//
// Requires an authenticated session.
func (s *Skywriter) CreatePost(ctx context.Context, text string, meta *LinkMetadata, manual []LinkRange) (*PostRef, error) {
	if err := s.requireSession(); err != nil {
		return nil, err
	}
	if err := ValidatePostText(text); err != nil {
		return nil, err
	}

	facets, err := s.buildFacets(ctx, text, manual)
	if err != nil {
		return nil, fmt.Errorf("failed to build facets: %w", err)
	}

	post := &bsky.FeedPost{
		Text:      text,
		CreatedAt: time.Now().Format(util.ISO8601),
	}
	if len(facets) > 0 {
		post.Facets = facets
	}
	if meta != nil {
		post.Embed = s.buildExternalEmbed(ctx, meta)
	}

	return s.createPostRecord(ctx, post)
}

// createPostRecord submits a fully-built post record and returns its reference.
func (s *Skywriter) createPostRecord(ctx context.Context, post *bsky.FeedPost) (*PostRef, error) {
	resp, err := atproto.RepoCreateRecord(ctx, s.client, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       s.Self.Did,
		Record: &lexutil.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return &PostRef{
		Uri: resp.Uri,
		Cid: resp.Cid,
	}, nil
}

// OldToNewPost converts bsky posts into Skywriter FeedPost types
func (s *Skywriter) OldToNewPost(oldPost *bsky.FeedPost, authorDID string) (*FeedPost, error) {
	if oldPost == nil {
		return nil, ErrNilPost
	}

	createdAt, err := time.Parse(time.RFC3339, oldPost.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}
	var newFacets []RichTextFacet
	for _, facet := range oldPost.Facets {
		if facet == nil {
			continue
		}
		newFacet, err := OldToNewFacet(facet)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPost, err)
		}
		newFacets = append(newFacets, *newFacet)
	}
	var newReplyInfo *ReplyInfo
	if oldPost.Reply != nil && oldPost.Reply.Parent != nil {
		newReplyInfo = &ReplyInfo{
			ReplyTarget: OldToNewRefPointer(oldPost.Reply.Parent),
			ReplyRoot:   OldToNewRefPointer(oldPost.Reply.Root),
		}
	}

	newEmbed, err := s.OldToNewEmbed(oldPost.Embed, authorDID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}

	return &FeedPost{
		CreatedAt: &createdAt,
		Facets:    newFacets,
		Text:      oldPost.Text,
		ReplyInfo: newReplyInfo,
		Languages: oldPost.Langs,
		Tags:      oldPost.Tags,
		Embed:     newEmbed,
		Raw:       oldPost,
	}, nil
}

// OldToNewPostView converts a detailed post view, carrying over engagement
// counts and the author profile.
func (s *Skywriter) OldToNewPostView(oldPostView *bsky.FeedDefs_PostView) (*FeedPost, error) {
	if oldPostView == nil {
		return nil, ErrNilPost
	}
	oldPost, ok := oldPostView.Record.Val.(*bsky.FeedPost)
	if !ok {
		return nil, ErrInvalidPost
	}
	newPost, err := s.OldToNewPost(oldPost, oldPostView.Author.Did)
	if err != nil {
		return nil, err
	}
	newPost.RawDetailed = oldPostView
	newPost.Uri = oldPostView.Uri
	newPost.Cid = oldPostView.Cid

	newPost.LikeCount = lo.ToPtr(int(lo.FromPtr(oldPostView.LikeCount)))
	newPost.QuoteCount = lo.ToPtr(int(lo.FromPtr(oldPostView.QuoteCount)))
	newPost.ReplyCount = lo.ToPtr(int(lo.FromPtr(oldPostView.ReplyCount)))
	newPost.RepostCount = lo.ToPtr(int(lo.FromPtr(oldPostView.RepostCount)))

	indexTime, err := time.Parse(time.RFC3339, oldPostView.IndexedAt)
	if err != nil {
		return newPost, fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}
	newPost.IndexedAt = &indexTime
	newPost.Author, err = OldToNewUserBasic(oldPostView.Author)

	return newPost, err
}
