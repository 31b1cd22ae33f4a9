package skywriter

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Destination names one publishing target of a broadcast.
type Destination string

const (
	DestinationBluesky Destination = "bluesky"
	DestinationWebhook Destination = "webhook"
)

// BroadcastResult maps each attempted destination to its outcome (nil on
// success). Partial success is visible per destination instead of being
// collapsed into a single boolean.
type BroadcastResult map[Destination]error

// Succeeded reports whether the destination was attempted and succeeded.
func (r BroadcastResult) Succeeded(d Destination) bool {
	err, attempted := r[d]
	return attempted && err == nil
}

// AllSucceeded reports whether every attempted destination succeeded.
func (r BroadcastResult) AllSucceeded() bool {
	for _, err := range r {
		if err != nil {
			return false
		}
	}
	return true
}

// Broadcaster publishes a composition to every configured destination
// concurrently. Each destination fails independently; one destination's
// error never aborts the other.
type Broadcaster struct {
	Client     *Skywriter
	Webhook    *WebhookConfig
	HTTPClient *http.Client
}

// Publish sends the composer's drafts to BlueSky and, when configured, the
// chat webhook. The webhook receives the draft texts joined with blank lines.
// Both submissions run concurrently and the call waits for both.
func (b *Broadcaster) Publish(ctx context.Context, comp *Composer) BroadcastResult {
	results := make(BroadcastResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(d Destination, err error) {
		mu.Lock()
		results[d] = err
		mu.Unlock()
	}

	texts := lo.FilterMap(comp.Segments(), func(d *PostDraft, _ int) (string, bool) {
		text := strings.TrimSpace(d.Text)
		return d.Text, text != ""
	})

	if b.Client != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := comp.Publish(ctx)
			record(DestinationBluesky, err)
		}()
	}

	if b.Webhook.enabled() && len(texts) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(DestinationWebhook, b.Webhook.Send(ctx, b.HTTPClient, strings.Join(texts, "\n\n")))
		}()
	}

	wg.Wait()
	return results
}
