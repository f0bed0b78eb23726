package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/mood-diary/backend/internal/config"
)

const (
	generatePath = "/api/v1/generate"
	statusPath   = "/api/v1/generate/record-info"

	maxTitleRunes = 80
	maxStyleRunes = 200
)

// SunoClient implements Client against the Suno-compatible generation API.
type SunoClient struct {
	baseURL      string
	apiKey       string
	model        string
	callbackURL  string
	negativeTags string
	instrumental bool
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// NewSunoClient builds a client from the music configuration. Status polls are
// throttled to one per poll interval with a small burst.
func NewSunoClient(cfg config.MusicConfig, httpClient *http.Client) *SunoClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &SunoClient{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		callbackURL:  cfg.CallbackURL,
		negativeTags: cfg.NegativeTags,
		instrumental: cfg.Instrumental,
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(rate.Every(interval/2), 4),
	}
}

type generatePayload struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl,omitempty"`
	NegativeTags string `json:"negativeTags,omitempty"`
}

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type generateData struct {
	TaskID string `json:"taskId"`
}

type recordData struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		SunoData []struct {
			ID             string  `json:"id"`
			AudioURL       string  `json:"audioUrl"`
			StreamAudioURL string  `json:"streamAudioUrl"`
			ImageURL       string  `json:"imageUrl"`
			Title          string  `json:"title"`
			Duration       float64 `json:"duration"`
		} `json:"sunoData"`
	} `json:"response"`
}

// Generate submits the brief and returns the vendor task id.
func (c *SunoClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body, err := json.Marshal(generatePayload{
		Prompt:       req.Prompt,
		Style:        truncateRunes(req.Style, maxStyleRunes),
		Title:        truncateRunes(req.Title, maxTitleRunes),
		CustomMode:   true,
		Instrumental: c.instrumental,
		Model:        c.model,
		CallBackURL:  c.callbackURL,
		NegativeTags: c.negativeTags,
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out envelope[generateData]
	if err := c.do(httpReq, &out); err != nil {
		return "", err
	}
	if out.Data.TaskID == "" {
		return "", fmt.Errorf("%w: response carried no task id", ErrVendor)
	}
	return out.Data.TaskID, nil
}

// Status fetches the current state of a task.
func (c *SunoClient) Status(ctx context.Context, taskID string) (StatusResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return StatusResult{}, err
	}

	endpoint := c.baseURL + statusPath + "?" + url.Values{"taskId": {taskID}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("build status request: %w", err)
	}

	var out envelope[recordData]
	if err := c.do(httpReq, &out); err != nil {
		return StatusResult{}, err
	}

	result := StatusResult{Status: out.Data.Status, Error: out.Data.ErrorMessage}
	for _, track := range out.Data.Response.SunoData {
		if track.AudioURL == "" && track.StreamAudioURL == "" {
			continue
		}
		result.AudioURL = track.AudioURL
		result.StreamURL = track.StreamAudioURL
		result.ImageURL = track.ImageURL
		break
	}
	return result, nil
}

func (c *SunoClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVendor, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrVendor, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d: %s", ErrVendor, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var head struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrVendor, err)
	}
	if head.Code != 0 && head.Code != http.StatusOK {
		return fmt.Errorf("%w: code %d: %s", ErrVendor, head.Code, head.Msg)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrVendor, err)
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
