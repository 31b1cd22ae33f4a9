package skywriter

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

var ErrNothingToPublish = errors.New("no non-empty drafts to publish")

// PostDraft is one in-progress thread segment: its text, the link ranges the
// user marked by hand, and at most one resolved link preview.
type PostDraft struct {
	Text       string        `json:"text"`
	LinkRanges []LinkRange   `json:"linkRanges,omitempty"`
	Metadata   *LinkMetadata `json:"metadata,omitempty"`
}

// AddLinkRange records a manually-marked link over the draft text.
func (d *PostDraft) AddLinkRange(r LinkRange) {
	d.LinkRanges = append(d.LinkRanges, r)
}

// Composer accumulates thread segments and publishes them in a single
// operation: one non-empty segment goes through the single-post path, more
// than one goes through the thread pipeline. Drafts survive failed publishes
// and are cleared only on success.
//
// Composer is not safe for concurrent use; it is meant to be driven from a
// single UI event loop.
type Composer struct {
	client *Skywriter

	// MaxGraphemes caps the visible length of each segment. Defaults to
	// MaxPostGraphemes.
	MaxGraphemes int

	drafts []*PostDraft
}

// NewComposer creates a composer with one empty segment, owned by the given client.
func NewComposer(client *Skywriter) *Composer {
	return &Composer{
		client:       client,
		MaxGraphemes: MaxPostGraphemes,
		drafts:       []*PostDraft{{}},
	}
}

// Segments returns the current drafts in thread order.
func (c *Composer) Segments() []*PostDraft {
	return c.drafts
}

// AddSegment appends a new empty segment and returns it.
func (c *Composer) AddSegment() *PostDraft {
	draft := &PostDraft{}
	c.drafts = append(c.drafts, draft)
	return draft
}

// RemoveSegment discards the segment at index. The last remaining segment
// cannot be removed.
func (c *Composer) RemoveSegment(index int) {
	if len(c.drafts) <= 1 || index < 0 || index >= len(c.drafts) {
		return
	}
	c.drafts = append(c.drafts[:index], c.drafts[index+1:]...)
}

// SetText replaces the text of the segment at index.
func (c *Composer) SetText(index int, text string) {
	if index < 0 || index >= len(c.drafts) {
		return
	}
	c.drafts[index].Text = text
}

// Validate checks every segment against the grapheme cap. Called by Publish
// before any network traffic; UIs can also call it on every edit to drive a
// character counter.
func (c *Composer) Validate() error {
	for _, draft := range c.drafts {
		if utf8.RuneCountInString(draft.Text) > c.MaxGraphemes {
			return ErrPostTooLong
		}
	}
	return nil
}

// UpdatePreview re-resolves the draft's link preview against its current
// text. The first URL wins, whether auto-detected or manually marked. When the
// URL is unchanged the existing preview stands; when no URL remains the
// preview is cleared; when resolution fails transiently the previous preview
// is kept.
func (c *Composer) UpdatePreview(ctx context.Context, d *PostDraft) {
	target := FirstURL(d.Text)
	if target == "" {
		for _, r := range d.LinkRanges {
			if r.URL != "" {
				target = r.URL
				break
			}
		}
	}

	if target == "" {
		d.Metadata = nil
		return
	}
	if d.Metadata != nil && d.Metadata.URL == target {
		return
	}
	if meta := c.client.ResolvePreview(ctx, target); meta != nil {
		d.Metadata = meta
	}
}

// Publish validates and dispatches the drafts: the single-post contract for
// one non-empty segment, the thread pipeline for several. No network call is
// made when validation fails or every draft is empty. Drafts reset to a
// single empty segment only after a fully successful publish.
func (c *Composer) Publish(ctx context.Context) ([]*PostRef, error) {
	nonEmpty := lo.Filter(c.drafts, func(d *PostDraft, _ int) bool {
		return strings.TrimSpace(d.Text) != ""
	})
	if len(nonEmpty) == 0 {
		return nil, ErrNothingToPublish
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.client.requireSession(); err != nil {
		return nil, err
	}

	var refs []*PostRef
	if len(nonEmpty) == 1 {
		draft := nonEmpty[0]
		ref, err := c.client.CreatePost(ctx, draft.Text, draft.Metadata, draft.LinkRanges)
		if err != nil {
			return nil, err
		}
		refs = []*PostRef{ref}
	} else {
		var err error
		refs, err = c.client.createThreadSegments(ctx, nonEmpty)
		if err != nil {
			return refs, err
		}
	}

	c.drafts = []*PostDraft{{}}
	return refs, nil
}
