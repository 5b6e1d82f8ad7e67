// Package transcribe uploads finished recordings to a speech-to-text
// endpoint and parses the transcribed text out of the response.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/api"
)

// Config holds client parameters.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// Client uploads one recording per call. A single request is in flight per
// use; guarding concurrent calls is the caller's responsibility.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Transcribe uploads the audio file as a multipart request and returns the
// transcribed text. onProgress, when non-nil, receives upload progress in
// [0,1] as request bytes go out; nothing is published when the total size is
// unknown. Failed attempts surface directly; there is no retry.
func (c *Client) Transcribe(ctx context.Context, filePath string, onProgress func(float64)) (string, error) {
	buf, contentType, err := c.buildBody(filePath)
	if err != nil {
		return "", err
	}

	total := int64(buf.Len())
	var body io.Reader = buf
	if onProgress != nil && total > 0 {
		body = &progressReader{r: buf, total: total, publish: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return "", api.Wrap(api.KindEncoding, err, "create request")
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", api.Wrap(api.KindNetwork, err, "upload failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", api.Wrap(api.KindNetwork, err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", api.Errorf(api.KindInvalidResponse, "api error %d: %s", resp.StatusCode, respBody)
	}
	if len(respBody) == 0 {
		return "", api.Errorf(api.KindEmptyResponse, "no response body")
	}

	// A missing text field is an error, never empty text.
	var parsed struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", api.Wrap(api.KindInvalidResponse, err, "parse response")
	}
	if parsed.Text == nil {
		return "", api.Errorf(api.KindInvalidResponse, "response missing text field")
	}
	return *parsed.Text, nil
}

// buildBody assembles the multipart payload: three text fields followed by
// exactly one file part.
func (c *Client) buildBody(filePath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", api.Wrap(api.KindEncoding, err, "open recording")
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := [][2]string{
		{"model", c.cfg.Model},
		{"language", c.cfg.Language},
		{"temperature", "0"},
	}
	for _, field := range fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", api.Wrap(api.KindEncoding, err, "write form field")
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(filePath)))
	header.Set("Content-Type", mimeTypeFor(filePath))
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", api.Wrap(api.KindEncoding, err, "create file part")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", api.Wrap(api.KindEncoding, err, "copy file data")
	}
	if err := w.Close(); err != nil {
		return nil, "", api.Wrap(api.KindEncoding, err, "finalize body")
	}

	return buf, w.FormDataContentType(), nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a":
		return "audio/m4a"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

// progressReader publishes sent/total as the transport consumes the body.
// Published values are clamped to [0,1] and never decrease.
type progressReader struct {
	r       io.Reader
	total   int64
	sent    int64
	last    float64
	publish func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		frac := float64(p.sent) / float64(p.total)
		if frac > 1 {
			frac = 1
		}
		if frac >= p.last {
			p.last = frac
			p.publish(frac)
		}
	}
	return n, err
}
