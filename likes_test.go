package skywriter

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleLikeRoundTrip(t *testing.T) {
	const postURI = "at://did:plc:other/app.bsky.feed.post/post123"

	liked := false
	var createdRkey, deletedRkey string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/xrpc/app.bsky.feed.getLikes":
			assert.Equal(t, postURI, r.URL.Query().Get("uri"))
			resp := map[string]interface{}{"uri": postURI, "likes": []interface{}{}}
			if liked {
				resp["likes"] = []interface{}{
					map[string]interface{}{
						"actor": map[string]interface{}{
							"did":    "did:plc:testself",
							"handle": "self.bsky.social",
						},
						"createdAt": "2024-01-01T00:00:00Z",
						"indexedAt": "2024-01-01T00:00:01Z",
					},
				}
			}
			json.NewEncoder(w).Encode(resp)
		case "/xrpc/com.atproto.repo.createRecord":
			var input struct {
				Collection string                 `json:"collection"`
				Repo       string                 `json:"repo"`
				Rkey       *string                `json:"rkey"`
				Record     map[string]interface{} `json:"record"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
			assert.Equal(t, "app.bsky.feed.like", input.Collection)
			assert.Equal(t, "did:plc:testself", input.Repo)
			require.NotNil(t, input.Rkey)
			createdRkey = *input.Rkey

			subject := input.Record["subject"].(map[string]interface{})
			assert.Equal(t, postURI, subject["uri"])

			liked = true
			json.NewEncoder(w).Encode(map[string]string{
				"uri": "at://did:plc:testself/app.bsky.feed.like/" + createdRkey,
				"cid": "bafyreib2rxk3rybk3aobmv5cjuql3bm2twh4jo5uxgf5kpqrsqck57obsa",
			})
		case "/xrpc/com.atproto.repo.deleteRecord":
			var input struct {
				Collection string `json:"collection"`
				Rkey       string `json:"rkey"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
			assert.Equal(t, "app.bsky.feed.like", input.Collection)
			deletedRkey = input.Rkey

			liked = false
			json.NewEncoder(w).Encode(map[string]interface{}{})
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	post := &PostRef{
		Uri: postURI,
		Cid: "bafyreib2rxk3rybk3aobmv5cjuql3bm2twh4jo5uxgf5kpqrsqck57obsa",
	}

	nowLiked, err := client.ToggleLike(context.Background(), post)
	require.NoError(t, err)
	assert.True(t, nowLiked)
	assert.Equal(t, "post123", createdRkey)

	nowLiked, err = client.ToggleLike(context.Background(), post)
	require.NoError(t, err)
	assert.False(t, nowLiked)

	// unlike addresses the exact record the like created
	assert.Equal(t, createdRkey, deletedRkey)
}

func TestToggleLikeRequiresSession(t *testing.T) {
	client, _ := newTestClient(t, nil)
	client.Disconnect()

	_, err := client.ToggleLike(context.Background(), &PostRef{
		Uri: "at://did:plc:other/app.bsky.feed.post/abc",
	})
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestToggleLikeRejectsBadURI(t *testing.T) {
	client, _ := newTestClient(t, nil)

	_, err := client.ToggleLike(context.Background(), &PostRef{Uri: "not-an-at-uri"})
	assert.ErrorIs(t, err, ErrInvalidUri)
}

func TestIsPostLikedScansViewerDid(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/app.bsky.feed.getLikes", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"uri": r.URL.Query().Get("uri"),
			"likes": []interface{}{
				map[string]interface{}{
					"actor":     map[string]interface{}{"did": "did:plc:someoneelse", "handle": "other.bsky.social"},
					"createdAt": "2024-01-01T00:00:00Z",
					"indexedAt": "2024-01-01T00:00:01Z",
				},
			},
		})
	})

	liked, err := client.IsPostLiked(context.Background(), "at://did:plc:other/app.bsky.feed.post/abc")
	require.NoError(t, err)
	assert.False(t, liked)
}
