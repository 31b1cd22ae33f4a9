package skywriter

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/carlmjohnson/requests"
	"github.com/samber/lo"
)

const (
	previewUserAgent      = "Mozilla/5.0 (compatible; skywriter/1.0; +https://github.com/eharris128/skywriter)"
	maxPreviewTitle       = 200
	maxPreviewDescription = 500
	maxBodyDescription    = 300
)

var profileURLRegexp = regexp.MustCompile(`^https?://bsky\.app/profile/([^/\s?#]+)`)

// FirstURL returns the first URL found in text, or "" when there is none.
func FirstURL(text string) string {
	spans := DetectFacets(text)
	for _, span := range spans {
		if span.Type == LinkFacet {
			return span.Value
		}
	}
	return ""
}

// ResolvePreview fetches preview metadata for a URL. It never returns an
// error: any fetch, parse, or timeout failure yields nil and the caller keeps
// whatever preview it was already showing.
//
// Resolution is layered: BlueSky profile URLs go through the authenticated
// client, reddit URLs try the structured JSON endpoint first, and everything
// else falls back to Open Graph tags, generic meta tags, the page title, and
// finally the page's visible text.
func (s *Skywriter) ResolvePreview(ctx context.Context, rawURL string) *LinkMetadata {
	if rawURL == "" {
		return nil
	}
	if handle, ok := profileHandleFromURL(rawURL); ok {
		if meta := s.resolveProfilePreview(ctx, rawURL, handle); meta != nil {
			return meta
		}
		// fall through to page scraping when the profile lookup fails
	}
	if isRedditURL(rawURL) {
		if meta := s.resolveRedditPost(ctx, rawURL); meta != nil {
			return meta
		}
	}
	return s.resolveGenericPage(ctx, rawURL)
}

// profileHandleFromURL extracts the actor from a bsky.app profile URL.
func profileHandleFromURL(rawURL string) (string, bool) {
	matches := profileURLRegexp.FindStringSubmatch(rawURL)
	if matches == nil {
		return "", false
	}
	return matches[1], true
}

func isRedditURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "reddit.com" || strings.HasSuffix(host, ".reddit.com")
}

// resolveProfilePreview builds a preview card for a BlueSky profile: title is
// "Display Name (@handle)", description is the bio plus follower/following/post
// counts, image is the avatar.
func (s *Skywriter) resolveProfilePreview(ctx context.Context, rawURL, handle string) *LinkMetadata {
	profile, err := s.GetProfile(ctx, handle)
	if err != nil {
		return nil
	}

	title := "@" + profile.Handle
	if displayName := lo.FromPtr(profile.DisplayName); displayName != "" {
		title = fmt.Sprintf("%s (@%s)", displayName, profile.Handle)
	}

	var desc strings.Builder
	if bio := lo.FromPtr(profile.Description); bio != "" {
		desc.WriteString(bio)
		desc.WriteString("\n\n")
	}
	fmt.Fprintf(&desc, "%d followers · %d following · %d posts",
		lo.FromPtr(profile.FollowersCount),
		lo.FromPtr(profile.FollowsCount),
		lo.FromPtr(profile.PostsCount))

	return &LinkMetadata{
		URL:         rawURL,
		Title:       truncateRunes(title, maxPreviewTitle),
		Description: truncateRunes(desc.String(), maxPreviewDescription),
		ImageURL:    lo.FromPtr(profile.Avatar),
	}
}

// redditListing mirrors the parts of reddit's <post>.json response we care about.
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title    string `json:"title"`
				Selftext string `json:"selftext"`
				URL      string `json:"url_overridden_by_dest"`
				Preview  struct {
					Images []struct {
						Source struct {
							URL string `json:"url"`
						} `json:"source"`
					} `json:"images"`
				} `json:"preview"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// resolveRedditPost hits reddit's structured JSON endpoint for a post URL.
// Returns nil on any failure so the caller can fall through to HTML scraping.
func (s *Skywriter) resolveRedditPost(ctx context.Context, rawURL string) *LinkMetadata {
	jsonURL := strings.TrimSuffix(rawURL, "/") + ".json"

	var body string
	err := requests.URL(jsonURL).
		UserAgent(previewUserAgent).
		ToString(&body).
		Fetch(ctx)
	if err != nil {
		return nil
	}

	var listings []redditListing
	if err := json.Unmarshal([]byte(body), &listings); err != nil {
		return nil
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return nil
	}

	entry := listings[0].Data.Children[0].Data
	if entry.Title == "" {
		return nil
	}

	imageURL := ""
	if len(entry.Preview.Images) > 0 {
		imageURL = html.UnescapeString(entry.Preview.Images[0].Source.URL)
	}

	return &LinkMetadata{
		URL:         rawURL,
		Title:       truncateRunes(html.UnescapeString(entry.Title), maxPreviewTitle),
		Description: truncateRunes(html.UnescapeString(entry.Selftext), maxPreviewDescription),
		ImageURL:    imageURL,
	}
}

// resolveGenericPage fetches a page and extracts metadata from its markup.
// Any HTTP status >= 400 counts as resolution failure.
func (s *Skywriter) resolveGenericPage(ctx context.Context, rawURL string) *LinkMetadata {
	var body string
	err := requests.URL(rawURL).
		UserAgent(previewUserAgent).
		ToString(&body).
		Fetch(ctx)
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	title := metaContent(doc, `meta[property="og:title"]`, `meta[name="title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = rawURL
	}

	description := metaContent(doc, `meta[property="og:description"]`, `meta[name="description"]`)
	if description == "" {
		description = visibleTextExcerpt(doc)
	}

	imageURL := metaContent(doc, `meta[property="og:image"]`, `meta[name="twitter:image"]`)

	return &LinkMetadata{
		URL:         rawURL,
		Title:       truncateRunes(html.UnescapeString(title), maxPreviewTitle),
		Description: truncateRunes(html.UnescapeString(description), maxPreviewDescription),
		ImageURL:    imageURL,
	}
}

// metaContent returns the content attribute of the first selector that matches.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if content = strings.TrimSpace(content); content != "" {
				return content
			}
		}
	}
	return ""
}

// visibleTextExcerpt is the last-resort description: the first ~300 characters
// of the page's visible text with scripts and styles stripped.
func visibleTextExcerpt(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	text := doc.Find("body").Text()
	text = strings.Join(strings.Fields(text), " ")
	return truncateRunes(text, maxBodyDescription)
}

// truncateRunes shortens s to at most max runes, appending an ellipsis when
// anything was cut.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
