// Package speech turns text into spoken audio through an external TTS
// service speaking the ElevenLabs wire format.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/httpx"
)

const defaultContentType = "audio/mpeg"

// Client synthesizes audio clips. Requests go through the retrying executor,
// so transient rate limiting is absorbed before an error reaches the caller.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	voiceID string
	modelID string
}

// New builds a synthesis client from configuration.
func New(rest *httpx.Client, cfg config.SpeechConfig) *Client {
	return &Client{
		http:    rest,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		voiceID: cfg.VoiceID,
		modelID: cfg.ModelID,
	}
}

// SynthesisRequest is one clip to generate. VoiceID overrides the configured
// default voice when set.
type SynthesisRequest struct {
	Text    string
	VoiceID string
}

// Audio is a finished clip ready to stream back to the browser.
type Audio struct {
	Data        []byte
	ContentType string
}

type synthesisBody struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize renders req.Text with the selected voice and returns the raw
// audio bytes.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("synthesize: text is required")
	}
	voice := req.VoiceID
	if voice == "" {
		voice = c.voiceID
	}
	if voice == "" {
		return nil, fmt.Errorf("synthesize: no voice configured")
	}

	body, err := json.Marshal(synthesisBody{Text: req.Text, ModelID: c.modelID})
	if err != nil {
		return nil, fmt.Errorf("synthesize: encode request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", defaultContentType)
	if c.apiKey != "" {
		header.Set("xi-api-key", c.apiKey)
	}

	resp, err := c.http.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice),
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read audio: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Audio{Data: data, ContentType: contentType}, nil
}
