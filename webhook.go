package skywriter

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
)

// WebhookConfig describes an optional chat-webhook destination for
// cross-posting. A nil or disabled config is a no-op destination.
type WebhookConfig struct {
	URL       string `json:"url"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Enabled   bool   `json:"enabled"`
}

func (w *WebhookConfig) enabled() bool {
	return w != nil && w.Enabled && w.URL != ""
}

type webhookPayload struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Send delivers content to the webhook. Any non-2xx response is a delivery
// failure. A disabled webhook returns ErrMissingWebhookURL before any network
// call.
func (w *WebhookConfig) Send(ctx context.Context, client *http.Client, content string) error {
	if !w.enabled() {
		return ErrMissingWebhookURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return requests.URL(w.URL).
		Method(http.MethodPost).
		Client(client).
		BodyJSON(&webhookPayload{
			Content:   content,
			Username:  w.Username,
			AvatarURL: w.AvatarURL,
		}).
		Fetch(ctx)
}
