package skywriter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalPage serves a throwaway web page and returns its URL.
func newLocalPage(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func TestComposerStartsWithOneEmptySegment(t *testing.T) {
	client, _ := newTestClient(t, nil)
	comp := NewComposer(client)

	require.Len(t, comp.Segments(), 1)
	assert.Empty(t, comp.Segments()[0].Text)
	assert.Equal(t, MaxPostGraphemes, comp.MaxGraphemes)
}

func TestComposerRemoveSegmentKeepsLast(t *testing.T) {
	client, _ := newTestClient(t, nil)
	comp := NewComposer(client)
	comp.AddSegment()
	comp.SetText(0, "first")
	comp.SetText(1, "second")

	comp.RemoveSegment(0)
	require.Len(t, comp.Segments(), 1)
	assert.Equal(t, "second", comp.Segments()[0].Text)

	// the last remaining segment is protected
	comp.RemoveSegment(0)
	require.Len(t, comp.Segments(), 1)
}

func TestPublishEmptyDraftsMakesNoNetworkCalls(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	comp := NewComposer(client)
	comp.SetText(0, "   \n\t ")

	refs, err := comp.Publish(context.Background())
	assert.ErrorIs(t, err, ErrNothingToPublish)
	assert.Nil(t, refs)
	assert.Zero(t, calls)
}

func TestPublishRejectsOverlongSegmentBeforeNetwork(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	comp := NewComposer(client)
	comp.SetText(0, strings.Repeat("a", MaxPostGraphemes+1))

	_, err := comp.Publish(context.Background())
	assert.ErrorIs(t, err, ErrPostTooLong)
	assert.Zero(t, calls)
}

func TestPublishRequiresSession(t *testing.T) {
	client, _ := newTestClient(t, nil)
	client.Disconnect()

	comp := NewComposer(client)
	comp.SetText(0, "hello")

	_, err := comp.Publish(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestPublishSingleSegmentCreatesOnePost(t *testing.T) {
	createCalls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/com.atproto.repo.createRecord", r.URL.Path)
		createCalls++

		var input struct {
			Collection string                 `json:"collection"`
			Repo       string                 `json:"repo"`
			Record     map[string]interface{} `json:"record"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "app.bsky.feed.post", input.Collection)
		assert.Equal(t, "did:plc:testself", input.Repo)
		assert.Equal(t, "just one post", input.Record["text"])
		assert.Nil(t, input.Record["reply"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"uri": "at://did:plc:testself/app.bsky.feed.post/only",
			"cid": "bafyreib2rxk3rybk3aobmv5cjuql3bm2twh4jo5uxgf5kpqrsqck57obsa",
		})
	})

	comp := NewComposer(client)
	comp.SetText(0, "just one post")

	refs, err := comp.Publish(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, 1, createCalls)
	assert.Equal(t, "at://did:plc:testself/app.bsky.feed.post/only", refs[0].Uri)

	// drafts reset to a single empty segment after success
	require.Len(t, comp.Segments(), 1)
	assert.Empty(t, comp.Segments()[0].Text)
}

func TestPublishThreadChainsReplies(t *testing.T) {
	var records []map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/xrpc/com.atproto.repo.createRecord", r.URL.Path)

		var input struct {
			Record map[string]interface{} `json:"record"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		records = append(records, input.Record)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"uri": fmt.Sprintf("at://did:plc:testself/app.bsky.feed.post/seg%d", len(records)),
			"cid": fmt.Sprintf("cid-seg%d", len(records)),
		})
	})

	comp := NewComposer(client)
	comp.SetText(0, "part one")
	comp.AddSegment()
	comp.SetText(1, "part two")
	comp.AddSegment()
	comp.SetText(2, "part three")

	refs, err := comp.Publish(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 3)
	require.Len(t, records, 3)

	// first post is the root and carries no reply ref
	assert.Nil(t, records[0]["reply"])

	rootURI := refs[0].Uri
	for i := 1; i < 3; i++ {
		reply, ok := records[i]["reply"].(map[string]interface{})
		require.True(t, ok, "segment %d should be a reply", i+1)

		root := reply["root"].(map[string]interface{})
		parent := reply["parent"].(map[string]interface{})
		assert.Equal(t, rootURI, root["uri"], "segment %d root", i+1)
		assert.Equal(t, refs[i-1].Uri, parent["uri"], "segment %d parent", i+1)
	}
}

func TestPublishThreadPartialFailureKeepsDrafts(t *testing.T) {
	createCalls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		createCalls++
		if createCalls == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"uri": fmt.Sprintf("at://did:plc:testself/app.bsky.feed.post/seg%d", createCalls),
			"cid": fmt.Sprintf("cid-seg%d", createCalls),
		})
	})

	comp := NewComposer(client)
	comp.SetText(0, "part one")
	comp.AddSegment()
	comp.SetText(1, "part two")

	refs, err := comp.Publish(context.Background())
	require.Error(t, err)
	// the first segment was published before the failure
	require.Len(t, refs, 1)
	assert.Equal(t, "at://did:plc:testself/app.bsky.feed.post/seg1", refs[0].Uri)

	// drafts survive for a retry
	require.Len(t, comp.Segments(), 2)
	assert.Equal(t, "part one", comp.Segments()[0].Text)
}

func TestCreateThreadValidatesAllSegmentsFirst(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.CreateThread(context.Background(), []string{"ok", strings.Repeat("x", MaxPostGraphemes+1)})
	assert.ErrorIs(t, err, ErrPostTooLong)
	assert.Zero(t, calls)

	_, err = client.CreateThread(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyThread)
}

func TestUpdatePreviewLifecycle(t *testing.T) {
	resolves := 0
	pageHandler := func(w http.ResponseWriter, r *http.Request) {
		resolves++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta property="og:title" content="Resolved"></head><body></body></html>`))
	}

	client, _ := newTestClient(t, nil)
	comp := NewComposer(client)
	draft := comp.Segments()[0]

	page := newLocalPage(t, pageHandler)

	// first resolution populates the preview
	comp.SetText(0, "look at "+page)
	comp.UpdatePreview(context.Background(), draft)
	require.NotNil(t, draft.Metadata)
	assert.Equal(t, "Resolved", draft.Metadata.Title)
	assert.Equal(t, 1, resolves)

	// unchanged URL does not refetch
	comp.SetText(0, "look again at "+page)
	comp.UpdatePreview(context.Background(), draft)
	assert.Equal(t, 1, resolves)

	// removing the URL clears the preview
	comp.SetText(0, "no links here")
	comp.UpdatePreview(context.Background(), draft)
	assert.Nil(t, draft.Metadata)
}

func TestUpdatePreviewKeepsStalePreviewOnFailure(t *testing.T) {
	client, _ := newTestClient(t, nil)
	comp := NewComposer(client)
	draft := comp.Segments()[0]

	stale := &LinkMetadata{URL: "https://old.example.com", Title: "Old"}
	draft.Metadata = stale

	comp.SetText(0, "see http://127.0.0.1:1/unreachable")
	comp.UpdatePreview(context.Background(), draft)

	// resolution failed, the previous preview stands
	assert.Same(t, stale, draft.Metadata)
}

func TestUpdatePreviewUsesManualRangeWhenTextHasNoURL(t *testing.T) {
	pageHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta property="og:title" content="From manual range"></head><body></body></html>`))
	}

	client, _ := newTestClient(t, nil)
	comp := NewComposer(client)
	draft := comp.Segments()[0]

	page := newLocalPage(t, pageHandler)
	comp.SetText(0, "click the word here")
	draft.AddLinkRange(LinkRange{Start: 15, End: 19, URL: page, Text: "here"})

	comp.UpdatePreview(context.Background(), draft)
	require.NotNil(t, draft.Metadata)
	assert.Equal(t, "From manual range", draft.Metadata.Title)
}
