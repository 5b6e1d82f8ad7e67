// Package classify asks a chat-completion endpoint whether a new utterance
// references previously stored utterances.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/api"
)

const maxAnswerTokens = 8

// Config holds classifier parameters.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Classifier performs one-shot yes/no classifications.
type Classifier struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Classifier {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Classifier{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify reports whether newText references anything in history. The reply
// is parsed leniently: after lower-casing and trimming, any occurrence of the
// substring "true" counts as a positive answer.
func (c *Classifier) Classify(ctx context.Context, newText string, history []string) (bool, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: "You answer strictly with the single word true or false."},
			{Role: "user", Content: buildQuestion(newText, history)},
		},
		Temperature: 0,
		MaxTokens:   maxAnswerTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return false, api.Wrap(api.KindEncoding, err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, api.Wrap(api.KindEncoding, err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, api.Wrap(api.KindNetwork, err, "classification request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, api.Wrap(api.KindNetwork, err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return false, api.Errorf(api.KindInvalidResponse, "api error %d: %s", resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, api.Wrap(api.KindInvalidResponse, err, "parse response")
	}
	if len(parsed.Choices) == 0 {
		return false, api.Errorf(api.KindInvalidResponse, "response has no choices")
	}

	reply := strings.ToLower(strings.TrimSpace(parsed.Choices[0].Message.Content))
	return strings.Contains(reply, "true"), nil
}

func buildQuestion(newText string, history []string) string {
	var b strings.Builder
	b.WriteString("Previous notes, newest first:\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for i, text := range history {
		fmt.Fprintf(&b, "%d. %s\n", i+1, text)
	}
	fmt.Fprintf(&b, "\nDoes the following new note reference any of the previous notes? Answer true or false.\n\nNew note: %s", newText)
	return b.String()
}
