package skywriter

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/bluesky-social/indigo/api/bsky"
)

// FacetType identifies the type of rich text element in a post (link, mention, hashtag, etc.).
type FacetType int

const (
	UnknownFacetType FacetType = iota
	LinkFacet
	MentionFacet
	TagFacet
)

func (ft FacetType) String() string {
	switch ft {
	case LinkFacet:
		return "Link Facet"
	case MentionFacet:
		return "Mention Facet"
	case TagFacet:
		return "Tag Facet"
	default:
		return "Unknown Facet"
	}
}

// Span is a facet candidate found by automatic detection. Offsets are byte
// positions into the UTF-8 encoding of the scanned text, matching the wire
// format BlueSky expects. Value holds the link URL, the mention handle
// (without @), or the tag (without #).
type Span struct {
	Type      FacetType
	ByteStart int
	ByteEnd   int
	Value     string
}

// LinkRange is a manually-marked link over a post draft. Start and End are
// rune offsets into the draft text as the user sees it; byte offsets are
// recomputed at publish time.
type LinkRange struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
}

var (
	urlRegexp     = regexp.MustCompile(`https?://[^\s]+`)
	mentionRegexp = regexp.MustCompile(`(?:^|[\s(])(@[A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,})`)
	tagRegexp     = regexp.MustCompile(`(?:^|\s)(#\w+)\b`)
)

// trailing characters that are usually punctuation after a URL, not part of it
const urlTrailingJunk = `.,;:!?'")]`

// DetectFacets scans text for URLs, mentions, and hashtags and returns their
// spans sorted by start offset. Regexp match indices are byte offsets already,
// so multi-byte characters before a match never misalign the result.
func DetectFacets(text string) []Span {
	var spans []Span

	for _, match := range urlRegexp.FindAllStringIndex(text, -1) {
		start, end := match[0], match[1]
		for end > start && strings.ContainsRune(urlTrailingJunk, rune(text[end-1])) {
			end--
		}
		if end == start {
			continue
		}
		spans = append(spans, Span{
			Type:      LinkFacet,
			ByteStart: start,
			ByteEnd:   end,
			Value:     text[start:end],
		})
	}

	for _, match := range mentionRegexp.FindAllStringSubmatchIndex(text, -1) {
		start, end := match[2], match[3]
		spans = append(spans, Span{
			Type:      MentionFacet,
			ByteStart: start,
			ByteEnd:   end,
			Value:     strings.TrimPrefix(text[start:end], "@"),
		})
	}

	for _, match := range tagRegexp.FindAllStringSubmatchIndex(text, -1) {
		start, end := match[2], match[3]
		spans = append(spans, Span{
			Type:      TagFacet,
			ByteStart: start,
			ByteEnd:   end,
			Value:     strings.TrimPrefix(text[start:end], "#"),
		})
	}

	slices.SortFunc(spans, func(a, b Span) int {
		return a.ByteStart - b.ByteStart
	})
	return spans
}

// ByteBounds converts the range's rune offsets into byte offsets over the
// UTF-8 encoding of text. The prefix before the range and the in-range
// substring are encoded separately, so emoji or other multi-byte characters
// before the link keep the facet aligned. Returns ok=false when the range no
// longer fits the current text.
func (r LinkRange) ByteBounds(text string) (byteStart, byteEnd int, ok bool) {
	runes := []rune(text)
	if r.Start < 0 || r.End > len(runes) || r.Start >= r.End {
		return 0, 0, false
	}
	byteStart = len(string(runes[:r.Start]))
	byteEnd = byteStart + len(string(runes[r.Start:r.End]))
	return byteStart, byteEnd, true
}

// buildFacets produces the wire-format facets for a post: automatically
// detected spans first, then manual link ranges appended without overlap
// deduplication (the consuming app renders later facets over earlier ones).
// Mentions whose handles cannot be resolved to DIDs are skipped rather than
// failing the whole post.
func (s *Skywriter) buildFacets(ctx context.Context, text string, manual []LinkRange) ([]*bsky.RichtextFacet, error) {
	var facets []*bsky.RichtextFacet

	for _, span := range DetectFacets(text) {
		var feature *bsky.RichtextFacet_Features_Elem
		switch span.Type {
		case LinkFacet:
			feature = &bsky.RichtextFacet_Features_Elem{
				RichtextFacet_Link: &bsky.RichtextFacet_Link{Uri: span.Value},
			}
		case MentionFacet:
			did, err := s.ResolveHandleToDID(ctx, span.Value)
			if err != nil {
				continue
			}
			feature = &bsky.RichtextFacet_Features_Elem{
				RichtextFacet_Mention: &bsky.RichtextFacet_Mention{Did: did},
			}
		case TagFacet:
			feature = &bsky.RichtextFacet_Features_Elem{
				RichtextFacet_Tag: &bsky.RichtextFacet_Tag{Tag: span.Value},
			}
		default:
			continue
		}
		facets = append(facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(span.ByteStart),
				ByteEnd:   int64(span.ByteEnd),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{feature},
		})
	}

	for _, r := range manual {
		byteStart, byteEnd, ok := r.ByteBounds(text)
		if !ok || r.URL == "" {
			continue
		}
		facets = append(facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(byteStart),
				ByteEnd:   int64(byteEnd),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{
				{
					RichtextFacet_Link: &bsky.RichtextFacet_Link{Uri: r.URL},
				},
			},
		})
	}

	return facets, nil
}

// RichTextFacet represents formatted text elements within a post such as links, mentions, and hashtags.
// It includes the type of element, its target (URL, user DID, hashtag), and position within the post text.
type RichTextFacet struct {
	Type       FacetType `json:"type"`
	Target     string    `json:"target"`
	StartIndex int       `json:"startIndex"`
	EndIndex   int       `json:"endIndex"`
}

// OldToNewFacet converts bsky facets into Skywriter facets
func OldToNewFacet(oldFacet *bsky.RichtextFacet) (*RichTextFacet, error) {
	if oldFacet == nil {
		return nil, ErrNilFacet
	}
	if oldFacet.Features == nil || len(oldFacet.Features) != 1 {
		return nil, ErrInvalidFacet
	}
	newFacetType := UnknownFacetType
	target := ""
	if oldFacet.Features[0].RichtextFacet_Mention != nil {
		newFacetType = MentionFacet
		target = oldFacet.Features[0].RichtextFacet_Mention.Did
	} else if oldFacet.Features[0].RichtextFacet_Link != nil {
		newFacetType = LinkFacet
		target = oldFacet.Features[0].RichtextFacet_Link.Uri
	} else if oldFacet.Features[0].RichtextFacet_Tag != nil {
		newFacetType = TagFacet
		target = oldFacet.Features[0].RichtextFacet_Tag.Tag
	}
	return &RichTextFacet{
		Type:       newFacetType,
		Target:     target,
		StartIndex: int(oldFacet.Index.ByteStart),
		EndIndex:   int(oldFacet.Index.ByteEnd),
	}, nil
}
