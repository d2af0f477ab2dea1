package fcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

const channelID = "order_alerts"

type Client struct {
	client *messaging.Client
	logger *slog.Logger
}

// NewClient initializes Firebase Cloud Messaging from a credentials file or
// an inline JSON document. With neither set the client is disabled and every
// send is a no-op error.
func NewClient(ctx context.Context, credPath, credJSON string, logger *slog.Logger) (*Client, error) {
	logger = logger.With("component", "fcm")

	var opt option.ClientOption
	switch {
	case credPath != "":
		opt = option.WithCredentialsFile(credPath)
	case credJSON != "":
		opt = option.WithCredentialsJSON([]byte(credJSON))
	default:
		logger.Warn("no Firebase credentials found, push notifications disabled")
		return &Client{logger: logger}, nil
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	logger.Info("Firebase Cloud Messaging initialized")
	return &Client{client: client, logger: logger}, nil
}

// SendMulticast pushes one notification to every token. It returns the
// tokens FCM reported as no longer registered so the caller can drop them.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error) {
	if c.client == nil {
		return nil, errors.New("FCM client not initialized")
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: channelID,
				Priority:  messaging.PriorityHigh,
			},
		},
	}

	response, err := c.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("error sending multicast: %w", err)
	}

	var stale []string
	for i, r := range response.Responses {
		if !r.Success && messaging.IsUnregistered(r.Error) {
			stale = append(stale, tokens[i])
		}
	}
	c.logger.Info("multicast sent", "success", response.SuccessCount, "failure", response.FailureCount, "stale", len(stale))
	return stale, nil
}

// IsEnabled returns true if FCM client is initialized
func (c *Client) IsEnabled() bool {
	return c != nil && c.client != nil
}
