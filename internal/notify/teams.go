package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// TeamsChannel posts MessageCard payloads to a Teams incoming webhook.
type TeamsChannel struct {
	webhookURL string
	client     *http.Client
}

// NewTeamsChannel constructs the channel. The webhook URL is the only
// protocol detail the service knows about Teams.
func NewTeamsChannel(webhookURL string) *TeamsChannel {
	return &TeamsChannel{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

func (t *TeamsChannel) Name() string { return "teams" }

// messageCard is the legacy Teams connector card format the webhook accepts.
type messageCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	ThemeColor string `json:"themeColor"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// Send posts msg to the webhook. Timeout and retries are the router's job;
// Send makes exactly one attempt under ctx.
func (t *TeamsChannel) Send(ctx context.Context, msg Message) error {
	card := messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: "D70000",
		Summary:    msg.Subject,
		Title:      msg.Subject,
		Text:       msg.Body,
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("teams webhook returned %d: %s", resp.StatusCode, body)
	}
	return nil
}
