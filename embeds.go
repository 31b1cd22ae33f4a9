package skywriter

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/carlmjohnson/requests"
	"github.com/samber/lo"
)

// LinkMetadata is a resolved link preview: the URL plus whatever title,
// description, and image the resolver could extract. At most one per draft.
type LinkMetadata struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// EmbedType identifies the type of embedded content in a post.
type EmbedType int

const (
	EmbedTypeUnknown EmbedType = iota
	EmbedTypeImages
	EmbedTypeExternal
	EmbedTypeRecord
	EmbedTypeVideo
)

func (et EmbedType) String() string {
	switch et {
	case EmbedTypeImages:
		return "Images"
	case EmbedTypeExternal:
		return "External Link"
	case EmbedTypeRecord:
		return "Quote Post"
	case EmbedTypeVideo:
		return "Video"
	default:
		return "Unknown Embed"
	}
}

// EmbedImage represents an image embedded in a post.
type EmbedImage struct {
	AltText string `json:"altText"`
	URL     string `json:"url"`
}

// EmbedLink represents an external link embedded in a post.
type EmbedLink struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ThumbURL    string `json:"thumbUrl,omitempty"`
}

// EmbedVideo represents a video embedded in a post.
type EmbedVideo struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

// Embed represents embedded content in a post with a simplified, flattened structure.
type Embed struct {
	Type     EmbedType            `json:"type"`
	Images   []EmbedImage         `json:"images,omitempty"`
	External *EmbedLink           `json:"external,omitempty"`
	Record   *PostRef             `json:"record,omitempty"`
	Video    *EmbedVideo          `json:"video,omitempty"`
	Raw      *bsky.FeedPost_Embed `json:"-"`
}

func (e Embed) String() string {
	switch e.Type {
	case EmbedTypeImages:
		return fmt.Sprintf("Embed{Type: %s, Images: %d}", e.Type, len(e.Images))
	case EmbedTypeExternal:
		if e.External != nil {
			return fmt.Sprintf("Embed{Type: %s, URL: %s}", e.Type, e.External.URL)
		}
		return fmt.Sprintf("Embed{Type: %s}", e.Type)
	case EmbedTypeRecord:
		if e.Record != nil {
			return fmt.Sprintf("Embed{Type: %s, URI: %s}", e.Type, e.Record.Uri)
		}
		return fmt.Sprintf("Embed{Type: %s}", e.Type)
	case EmbedTypeVideo:
		if e.Video != nil {
			return fmt.Sprintf("Embed{Type: %s, URL: %s}", e.Type, e.Video.URL)
		}
		return fmt.Sprintf("Embed{Type: %s}", e.Type)
	default:
		return fmt.Sprintf("Embed{Type: %s}", e.Type)
	}
}

// buildExternalEmbed constructs an app.bsky.embed.external record from
// resolved link metadata. The thumbnail is best-effort: a failed download or
// blob upload leaves Thumb nil rather than failing the post.
func (s *Skywriter) buildExternalEmbed(ctx context.Context, meta *LinkMetadata) *bsky.FeedPost_Embed {
	var thumb *lexutil.LexBlob
	if meta.ImageURL != "" {
		if blob, err := s.uploadThumbnail(ctx, meta.ImageURL); err == nil {
			thumb = blob
		}
	}
	return &bsky.FeedPost_Embed{
		EmbedExternal: &bsky.EmbedExternal{
			LexiconTypeID: "app.bsky.embed.external",
			External: &bsky.EmbedExternal_External{
				Uri:         meta.URL,
				Title:       meta.Title,
				Description: meta.Description,
				Thumb:       thumb,
			},
		},
	}
}

// uploadThumbnail downloads the image and uploads it as a blob, returning the
// reference needed to attach it to an embed.
func (s *Skywriter) uploadThumbnail(ctx context.Context, imageURL string) (*lexutil.LexBlob, error) {
	var buf bytes.Buffer
	err := requests.URL(imageURL).
		Client(s.client.Client).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedFetch, err)
	}

	out, err := atproto.RepoUploadBlob(ctx, s.client, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to upload thumbnail: %w", err)
	}
	if out == nil || out.Blob == nil {
		return nil, ErrBadResponse
	}
	return out.Blob, nil
}

// OldToNewEmbed converts BlueSky's complex embed types to the simplified Embed structure
func (s *Skywriter) OldToNewEmbed(oldEmbed *bsky.FeedPost_Embed, authorDID string) (*Embed, error) {
	if oldEmbed == nil {
		return nil, nil
	}

	embed := &Embed{
		Type: EmbedTypeUnknown,
		Raw:  oldEmbed,
	}

	if oldEmbed.EmbedImages != nil {
		embed.Type = EmbedTypeImages
		embed.Images = make([]EmbedImage, len(oldEmbed.EmbedImages.Images))

		for i, img := range oldEmbed.EmbedImages.Images {
			imageURL := ""
			if img.Image != nil && img.Image.Ref.String() != "" && authorDID != "" {
				imageURL = s.blobURL(authorDID, img.Image.Ref.String())
			}
			embed.Images[i] = EmbedImage{
				AltText: img.Alt,
				URL:     imageURL,
			}
		}
	}

	if oldEmbed.EmbedExternal != nil && oldEmbed.EmbedExternal.External != nil {
		embed.Type = EmbedTypeExternal
		thumbURL := ""
		if oldEmbed.EmbedExternal.External.Thumb != nil && oldEmbed.EmbedExternal.External.Thumb.Ref.String() != "" && authorDID != "" {
			thumbURL = s.blobURL(authorDID, oldEmbed.EmbedExternal.External.Thumb.Ref.String())
		}
		embed.External = &EmbedLink{
			URL:         oldEmbed.EmbedExternal.External.Uri,
			Title:       oldEmbed.EmbedExternal.External.Title,
			Description: oldEmbed.EmbedExternal.External.Description,
			ThumbURL:    thumbURL,
		}
	}

	if oldEmbed.EmbedRecord != nil && oldEmbed.EmbedRecord.Record != nil {
		embed.Type = EmbedTypeRecord
		embed.Record = OldToNewRefPointer(oldEmbed.EmbedRecord.Record)
	}

	if oldEmbed.EmbedVideo != nil {
		embed.Type = EmbedTypeVideo
		videoURL := ""
		if oldEmbed.EmbedVideo.Video != nil && oldEmbed.EmbedVideo.Video.Ref.String() != "" && authorDID != "" {
			videoURL = s.blobURL(authorDID, oldEmbed.EmbedVideo.Video.Ref.String())
		}
		embed.Video = &EmbedVideo{
			URL:     videoURL,
			AltText: lo.FromPtr(oldEmbed.EmbedVideo.Alt),
		}
	}

	if oldEmbed.EmbedRecordWithMedia != nil {
		// Record plus media; surface the record and leave the media in Raw.
		embed.Type = EmbedTypeRecord
		if oldEmbed.EmbedRecordWithMedia.Record != nil && oldEmbed.EmbedRecordWithMedia.Record.Record != nil {
			embed.Record = OldToNewRefPointer(oldEmbed.EmbedRecordWithMedia.Record.Record)
		}
	}

	return embed, nil
}

// blobURL builds the public URL for a stored blob:
// https://server/xrpc/com.atproto.sync.getBlob?did=userDID&cid=blobCID
func (s *Skywriter) blobURL(did, cid string) string {
	return fmt.Sprintf("%s/xrpc/com.atproto.sync.getBlob?did=%s&cid=%s", s.client.Host, did, cid)
}
