// Package usersync keeps the server-side user record in step with a client's
// identity-provider session.
//
// A Watcher subscribes to session changes and, each time a new signed-in user
// appears, sends one body-less POST to the sync endpoint. The request is
// fire-and-forget: failures are logged and dropped, there are no retries, and
// the next qualifying session change simply tries again. The endpoint is
// idempotent, so duplicate firings are harmless.
package usersync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultPath is the sync endpoint path.
const DefaultPath = "/api/user/sync"

// SessionUser is the signed-in user as the client sees it.
type SessionUser struct {
	ID    string
	Email string
}

// SessionState is one observation of the client session.
type SessionState struct {
	SignedIn bool
	User     *SessionUser
	// Token is the session token sent as the bearer credential.
	Token string
}

// Config configures a Watcher.
type Config struct {
	BaseURL    string
	Path       string
	HTTPClient *http.Client
}

// Watcher fires the sync request on sign-in transitions.
type Watcher struct {
	endpoint string
	client   *http.Client
	logger   *zap.SugaredLogger

	mu           sync.Mutex
	lastSignedIn bool
	lastUser     *SessionUser

	inflight sync.WaitGroup
	fired    atomic.Int64
}

func NewWatcher(cfg Config, logger *zap.SugaredLogger) *Watcher {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Watcher{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + path,
		client:   client,
		logger:   logger,
	}
}

// OnSessionChange observes a session state. It fires when the (SignedIn,
// User) pair differs from the previous observation and the new pair is
// signed in with a user. Users compare by pointer: the same pointer never
// re-fires, a new pointer does. It never blocks on the network.
func (w *Watcher) OnSessionChange(s SessionState) {
	w.mu.Lock()
	changed := s.SignedIn != w.lastSignedIn || s.User != w.lastUser
	w.lastSignedIn, w.lastUser = s.SignedIn, s.User
	w.mu.Unlock()

	if !changed || !s.SignedIn || s.User == nil {
		return
	}
	w.fired.Add(1)
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.sync(s)
	}()
}

// Fired reports how many sync requests have been started.
func (w *Watcher) Fired() int64 { return w.fired.Load() }

// Wait blocks until every started sync request has finished.
func (w *Watcher) Wait() { w.inflight.Wait() }

type syncResponse struct {
	Created bool `json:"created"`
}

func (w *Watcher) sync(s SessionState) {
	// not tied to any caller context once fired
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.endpoint, nil)
	if err != nil {
		w.logger.Errorw("user sync failed", "user_id", s.User.ID, "err", err)
		return
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Errorw("user sync failed", "user_id", s.User.ID, "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		w.logger.Errorw("user sync failed", "user_id", s.User.ID, "err", fmt.Errorf("unexpected status %d", resp.StatusCode))
		return
	}
	var out syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		w.logger.Errorw("user sync failed", "user_id", s.User.ID, "err", fmt.Errorf("decode response: %w", err))
		return
	}
	if out.Created {
		w.logger.Infow("user created in database", "user_id", s.User.ID)
	} else {
		w.logger.Debugw("user already exists in database", "user_id", s.User.ID)
	}
}
