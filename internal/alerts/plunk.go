package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// Plunk sends email through the Plunk HTTP API.
type Plunk struct {
	apiKey  string
	apiURL  string
	from    string
	replyTo string
	client  *http.Client
}

func NewPlunk(apiKey, apiURL, from, replyTo string, client *http.Client) *Plunk {
	if apiURL == "" {
		apiURL = "https://api.useplunk.com/v1/send"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Plunk{apiKey: apiKey, apiURL: apiURL, from: from, replyTo: replyTo, client: client}
}

type plunkSendBody struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
	Reply   string `json:"reply,omitempty"`
}

func (p *Plunk) Send(ctx context.Context, e Email) error {
	if p.apiKey == "" {
		return fmt.Errorf("plunk not configured: set PLUNK_API_KEY")
	}
	body := e.HTML
	if body == "" {
		body = e.Text
	}
	b, err := json.Marshal(plunkSendBody{To: e.To, Subject: e.Subject, Body: body, From: p.from, Reply: p.replyTo})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("plunk send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if msg := gjson.GetBytes(raw, "message"); msg.Exists() {
		return fmt.Errorf("plunk send failed: status=%d message=%s", resp.StatusCode, msg.String())
	}
	if len(raw) > 0 {
		return fmt.Errorf("plunk send failed: status=%d body=%s", resp.StatusCode, raw)
	}
	return fmt.Errorf("plunk send failed: status=%d", resp.StatusCode)
}
