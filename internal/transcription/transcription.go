// Package transcription uploads audio to the transcription vendor, polls
// the job until it finishes and downloads the resulting transcript.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/retry"
	"transcript-insights-go/internal/types"
)

// ErrPollTimeout is returned when the vendor never reports a final status
// within the polling deadline.
var ErrPollTimeout = errors.New("transcription poll timeout")

type PublishSuccessResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
		WordsCount       int    `json:"WordsCount"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type StatusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status               string `json:"Status"`
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
		WordsCount           int    `json:"WordsCount"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

// Transcript is what the vendor hands back. Utterances and Words are set
// when the download is structured JSON; otherwise Text carries the raw body
// for the normalizer.
type Transcript struct {
	Utterances []types.Utterance
	Words      []types.Word
	Text       string
}

// Provider turns an audio reference into a transcript.
type Provider interface {
	Transcribe(ctx context.Context, audioURL string) (*Transcript, error)
}

type Config struct {
	URL          string
	PollInterval time.Duration
	PollTimeout  time.Duration
	Mock         bool
	Retry        retry.Policy
}

// Client talks to the publish/getstatus/download transcription vendor.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

func New(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 12 * time.Second},
		log:  logger.Component("transcription"),
	}
}

// Transcribe publishes the audio, polls until the vendor finishes and
// downloads the result.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (*Transcript, error) {
	if c.cfg.Mock {
		return mockTranscript(), nil
	}
	if c.cfg.URL == "" {
		return nil, errors.New("TRANSCRIBE_URL not set")
	}
	log := c.log.WithField("audio_url", audioURL)

	mediaID, existingURL, err := c.publish(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	finalURL := existingURL
	if finalURL == "" {
		log.WithField("media_id", mediaID).Info("transcription queued, polling")
		if finalURL, err = c.poll(ctx, mediaID); err != nil {
			return nil, err
		}
	}
	log.WithField("final_url", finalURL).Info("download final transcript")
	return c.download(ctx, finalURL)
}

func (c *Client) publish(ctx context.Context, audioURL string) (string, string, error) {
	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/transcribe"
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	w.WriteField("recordingLink", audioURL)
	w.WriteField("wordTimestamps", "true")
	_ = w.Close()
	body := b.Bytes()

	var resp PublishSuccessResponse
	err := c.doJSON(ctx, "transcribe_publish", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, &resp)
	if err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("transcribe publish error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptionURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return "", resp.Data.TranscriptionURL, nil
	}
	return resp.Data.MediaId, "", nil
}

// poll asks for status every PollInterval until PollTimeout elapses.
func (c *Client) poll(ctx context.Context, mediaID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	u, err := url.Parse(strings.TrimRight(c.cfg.URL, "/") + "/getstatus")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mediaId", mediaID)
	u.RawQuery = q.Encode()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w after %s", ErrPollTimeout, c.cfg.PollTimeout)
			}
			return "", ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return "", err
		}
		var s StatusResponse
		if err := c.decode(req, &s); err != nil {
			c.log.WithError(err).Debug("status check failed")
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.TranscriptionTextURL, nil
		case "Failed":
			return "", fmt.Errorf("transcription failed: %s", s.Reason)
		}
	}
}

type downloadedUtterance struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

type downloadedTranscript struct {
	Utterances []downloadedUtterance `json:"utterances"`
	Words      []types.Word          `json:"words"`
}

func (c *Client) download(ctx context.Context, target string) (*Transcript, error) {
	body, err := retry.Value(ctx, c.cfg.Retry, "transcribe_download", func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("download failed: %s", string(b))
		}
		if resp.StatusCode >= 300 {
			return nil, retry.Permanent(fmt.Errorf("download failed: %s", string(b)))
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return parseTranscript(body), nil
}

func parseTranscript(body []byte) *Transcript {
	var dt downloadedTranscript
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &dt) == nil && len(dt.Utterances) > 0 {
		t := &Transcript{Words: dt.Words}
		for i, u := range dt.Utterances {
			speaker := u.Speaker
			if speaker == "" {
				speaker = fmt.Sprintf("Speaker %d", i%2+1)
			}
			t.Utterances = append(t.Utterances, types.Utterance{
				SpeakerID:    speaker,
				StartSeconds: int(u.Start),
				EndSeconds:   int(u.End),
				Text:         strings.TrimSpace(u.Text),
			})
		}
		return t
	}
	return &Transcript{Text: string(body)}
}

func (c *Client) doJSON(ctx context.Context, op string, build func(context.Context) (*http.Request, error), target any) error {
	return c.cfg.Retry.Do(ctx, op, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return retry.Permanent(err)
		}
		return c.decode(req, target)
	})
}

func (c *Client) decode(req *http.Request, target any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: %s", string(body))
	}
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return retry.Permanent(fmt.Errorf("json decode error: %v body=%s", err, string(body)))
	}
	return nil
}

func mockTranscript() *Transcript {
	lines := []string{
		"Welcome back. Today we look at how transcripts are split into sections before analysis.",
		"Long recordings are cut by time, short notes by word count, and a single speaker uses word timestamps.",
		"Each section is analyzed on its own, so one failure never sinks the whole run.",
	}
	t := &Transcript{}
	at := 0.0
	for i, l := range lines {
		start := at
		for _, w := range strings.Fields(l) {
			t.Words = append(t.Words, types.Word{Text: w, Start: at, End: at + 0.4})
			at += 0.45
		}
		t.Utterances = append(t.Utterances, types.Utterance{
			SpeakerID:    fmt.Sprintf("Speaker %d", i%2+1),
			StartSeconds: int(start),
			EndSeconds:   int(at),
			Text:         l,
		})
	}
	return t
}
