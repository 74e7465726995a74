package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"loom/internal/domain/chat"
	"loom/internal/logging"
)

// httpThreadListRefresher fetches the current thread's summary after every
// backend transition. Transport failures here are logged and swallowed;
// refreshing is best-effort by contract.
type httpThreadListRefresher struct {
	baseURL string
	thread  func() chat.ThreadID
	client  *http.Client
	logger  logging.Logger
}

func newThreadListRefresher(baseURL string, thread func() chat.ThreadID, logger logging.Logger) *httpThreadListRefresher {
	return &httpThreadListRefresher{
		baseURL: baseURL,
		thread:  thread,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logging.OrNop(logger),
	}
}

func (r *httpThreadListRefresher) RefreshThreadList() {
	thread := r.thread()
	if thread == chat.UnboundThread {
		return
	}
	resp, err := r.client.Get(fmt.Sprintf("%s/threads/%s", r.baseURL, thread))
	if err != nil {
		r.logger.Warn("thread summary refresh failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("thread summary refresh: status %s", resp.Status)
		return
	}
	var summary struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		r.logger.Debug("thread summary decode failed: %v", err)
		return
	}
	r.logger.Debug("thread %s: %s", thread, summary.Status)
}
