package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/eharris128/skywriter"
)

type config struct {
	identifier     string
	password       string
	server         string
	webhookURL     string
	webhookEnabled bool
	webhookAvatar  string
	webhookUser    string
}

func loadConfig() config {
	godotenv.Load()
	cfg := config{
		identifier:     os.Getenv("SKYWRITER_IDENTIFIER"),
		password:       os.Getenv("SKYWRITER_APP_PASSWORD"),
		server:         os.Getenv("SKYWRITER_SERVER"),
		webhookURL:     os.Getenv("SKYWRITER_WEBHOOK_URL"),
		webhookEnabled: os.Getenv("SKYWRITER_WEBHOOK_ENABLED") == "true",
		webhookAvatar:  os.Getenv("SKYWRITER_WEBHOOK_AVATAR_URL"),
		webhookUser:    os.Getenv("SKYWRITER_WEBHOOK_USERNAME"),
	}
	if cfg.server == "" {
		cfg.server = "https://bsky.social"
	}
	if cfg.webhookUser == "" {
		cfg.webhookUser = "skywriter"
	}
	return cfg
}

// segments returns the thread bodies: each CLI argument is one segment, or
// stdin is read whole and split on blank lines.
func segments(log *logrus.Logger) []string {
	if len(os.Args) > 1 {
		return os.Args[1:]
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.WithError(err).Fatal("failed to read stdin")
	}
	var bodies []string
	for _, part := range strings.Split(string(data), "\n\n") {
		if strings.TrimSpace(part) != "" {
			bodies = append(bodies, strings.TrimSpace(part))
		}
	}
	return bodies
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := loadConfig()
	if cfg.identifier == "" || cfg.password == "" {
		log.Fatal(skywriter.ErrMissingCredentials)
	}

	bodies := segments(log)
	if len(bodies) == 0 {
		log.Fatal("nothing to post: pass segments as arguments or on stdin")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := skywriter.NewCustomInstance(ctx, cfg.server, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		log.WithError(err).Fatal("could not reach server")
	}
	if err := client.Login(ctx, cfg.identifier, cfg.password); err != nil {
		switch skywriter.Classify(err) {
		case skywriter.ErrorKindAuth:
			log.Fatal("invalid handle or app password, check your settings")
		case skywriter.ErrorKindUnreachable:
			log.Fatal("could not connect to the internet")
		default:
			log.WithError(err).Fatal("login failed")
		}
	}
	defer client.Disconnect()
	log.WithField("handle", client.Self.Handle).Info("logged in")

	comp := skywriter.NewComposer(client)
	comp.SetText(0, bodies[0])
	for _, body := range bodies[1:] {
		comp.AddSegment().Text = body
	}

	// Resolve a link preview for the first segment before publishing.
	first := comp.Segments()[0]
	comp.UpdatePreview(ctx, first)
	if first.Metadata != nil {
		log.WithField("title", first.Metadata.Title).Info("attached link preview")
	}

	broadcaster := &skywriter.Broadcaster{
		Client: client,
		Webhook: &skywriter.WebhookConfig{
			URL:       cfg.webhookURL,
			Username:  cfg.webhookUser,
			AvatarURL: cfg.webhookAvatar,
			Enabled:   cfg.webhookEnabled,
		},
	}

	results := broadcaster.Publish(ctx, comp)
	for destination, err := range results {
		entry := log.WithField("destination", destination)
		if err != nil {
			switch skywriter.Classify(err) {
			case skywriter.ErrorKindUnreachable:
				entry.Error("failed to post: could not connect to the internet")
			case skywriter.ErrorKindAuth:
				entry.Error("failed to post: authentication rejected")
			default:
				entry.WithError(err).Error("failed to post")
			}
			continue
		}
		entry.Info("posted successfully")
	}
	if !results.AllSucceeded() {
		os.Exit(1)
	}
}
