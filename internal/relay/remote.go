package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zhouzirui/mood-diary/backend/internal/service/music"
)

// RemoteSource reads callbacks kept by an upstream relay through its
// GET {base}/{taskId} endpoint. It is the polling side of WithForward.
type RemoteSource struct {
	baseURL string
	client  *http.Client
}

// NewRemoteSource points at the same base URL vendor pushes are forwarded to.
func NewRemoteSource(baseURL string, client *http.Client) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Fetch returns the record the upstream relay holds for taskID.
// A 404 is reported as found=false without an error.
func (s *RemoteSource) Fetch(ctx context.Context, taskID string) (Record, bool, error) {
	target := s.baseURL + "/" + url.PathEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Record{}, false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Record{}, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Record{}, false, nil
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Record{}, false, fmt.Errorf("upstream relay answered %d", resp.StatusCode)
	}

	var rec Record
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&rec); err != nil {
		return Record{}, false, fmt.Errorf("decode relay record: %w", err)
	}
	return rec, true, nil
}

// LookupStatus satisfies music.CallbackSource. Upstream errors read as "no
// callback yet" so the requestor keeps polling the vendor.
func (s *RemoteSource) LookupStatus(ctx context.Context, taskID string) (music.StatusResult, bool) {
	rec, ok, err := s.Fetch(ctx, taskID)
	if err != nil {
		log.Warn("upstream relay lookup failed", "taskId", taskID, "err", err)
		return music.StatusResult{}, false
	}
	if !ok {
		return music.StatusResult{}, false
	}
	return rec.StatusResult(), true
}
