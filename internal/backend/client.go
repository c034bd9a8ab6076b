package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Config for the movie/subtitle/audio backend.
type Config struct {
	BaseURL string
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries    int
	RetryDelay time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("backend base URL is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be greater than 0")
	}
	if c.Retries < 0 {
		return fmt.Errorf("backend retries must not be negative")
	}
	return nil
}

// Client talks to the backend over JSON POST endpoints. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    string
}

func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	return &Client{
		config:     config,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{},
	}, nil
}

func (c *Client) SearchMovies(ctx context.Context, text string) (*SearchResult, error) {
	var out SearchResult
	if err := c.postJSON(ctx, "/search-movies", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchSubtitles returns the raw subtitle text for track.
func (c *Client) FetchSubtitles(ctx context.Context, track subtitle.Track) (string, error) {
	req := subtitlesRequest{
		ImdbID:        track.MovieID,
		LanguageCode:  track.TrackID,
		SeasonNumber:  track.Season,
		EpisodeNumber: track.Episode,
	}
	var out subtitlesResponse
	if err := c.postJSON(ctx, "/fetch-subtitles", req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SrtContent) == "" {
		return "", errs.New(errs.NotFound, "no subtitles for track").WithContext("track", track.Key())
	}
	return out.SrtContent, nil
}

func (c *Client) CheckFileExists(ctx context.Context, filePath string) (bool, error) {
	var out existsResponse
	if err := c.postJSON(ctx, "/check-file-exists", filePathRequest{FilePath: filePath}, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// GenerateAudio asks the backend to synthesize text into filePath.
func (c *Client) GenerateAudio(ctx context.Context, text, filePath string) error {
	var out generateResponse
	if err := c.postJSON(ctx, "/generate-audio", generateRequest{Text: text, FilePath: filePath}, &out); err != nil {
		return err
	}
	if !out.Success {
		return errs.New(errs.Transient, "audio generation rejected: "+out.Message).WithContext("path", filePath)
	}
	return nil
}

func (c *Client) FetchAudioFile(ctx context.Context, filePath string) ([]byte, error) {
	return c.post(ctx, "/fetch-audio-file", filePathRequest{FilePath: filePath})
}

func (c *Client) SendFeedback(ctx context.Context, feedback Feedback) error {
	_, err := c.post(ctx, "/send-feedback", feedback)
	return err
}

// Transcribe sends a recorded sample for speech-to-text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error) {
	var out transcribeResponse
	if err := c.postJSON(ctx, "/transcribe-audio", transcribeRequest{Audio: audio, Language: languageCode}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(err, errs.Unknown, "decode response").WithContext("path", path)
	}
	return nil
}

// post retries transient failures (network errors, timeouts, 5xx) up to config.Retries times.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if attempt > 0 {
			log.Debug("retrying %s (attempt %d): %v", path, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(ctx.Err(), errs.Timeout, "request cancelled").WithContext("path", path)
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		body, err := c.attempt(ctx, path, jsonData)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !errs.Is(err, errs.Transient) && !errs.Is(err, errs.Timeout) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, path string, jsonData []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.Wrap(err, errs.Timeout, "backend request timed out").WithContext("path", path)
		}
		return nil, errs.Wrap(err, errs.Transient, "backend request failed").WithContext("path", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(err, errs.Transient, "read response").WithContext("path", path)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.New(errs.NotFound, "resource not found").WithContext("path", path)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, errs.Newf(errs.Transient, "backend returned %d", resp.StatusCode).WithContext("path", path)
	default:
		return nil, errs.Newf(errs.Validation, "backend returned %d: %s", resp.StatusCode, truncate(string(body), 200)).
			WithContext("path", path)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
