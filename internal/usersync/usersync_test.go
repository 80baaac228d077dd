package usersync

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type syncServer struct {
	*httptest.Server
	hits  atomic.Int32
	auths chan string
}

func newSyncServer(t *testing.T, status int, body string) *syncServer {
	t.Helper()
	s := &syncServer{auths: make(chan string, 16)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultPath, r.URL.Path)
		s.hits.Add(1)
		s.auths <- r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestWatcherFiresOnceOnSignIn(t *testing.T) {
	srv := newSyncServer(t, http.StatusOK, `{"created":true}`)
	w := NewWatcher(Config{BaseURL: srv.URL}, zap.NewNop().Sugar())

	u := &SessionUser{ID: "user_1"}
	w.OnSessionChange(SessionState{})
	w.OnSessionChange(SessionState{SignedIn: true, User: u, Token: "tok"})
	w.Wait()
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.Equal(t, "Bearer tok", <-srv.auths)

	// re-render with the same signed-in user
	w.OnSessionChange(SessionState{SignedIn: true, User: u, Token: "tok"})
	w.Wait()
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.Equal(t, int64(1), w.Fired())
}

func TestWatcherIgnoresPartialState(t *testing.T) {
	srv := newSyncServer(t, http.StatusOK, `{"created":false}`)
	w := NewWatcher(Config{BaseURL: srv.URL}, zap.NewNop().Sugar())

	w.OnSessionChange(SessionState{SignedIn: true})
	w.OnSessionChange(SessionState{SignedIn: false, User: &SessionUser{ID: "user_1"}})
	w.Wait()
	assert.Equal(t, int32(0), srv.hits.Load())
}

func TestWatcherRefiresOnNewSession(t *testing.T) {
	srv := newSyncServer(t, http.StatusOK, `{"created":false}`)
	w := NewWatcher(Config{BaseURL: srv.URL + "/"}, zap.NewNop().Sugar())

	w.OnSessionChange(SessionState{SignedIn: true, User: &SessionUser{ID: "user_1"}})
	w.OnSessionChange(SessionState{})
	w.OnSessionChange(SessionState{SignedIn: true, User: &SessionUser{ID: "user_1"}})
	// a new user object without a real new session also fires
	w.OnSessionChange(SessionState{SignedIn: true, User: &SessionUser{ID: "user_1"}})
	w.Wait()
	assert.Equal(t, int32(3), srv.hits.Load())
}

func TestWatcherSwallowsFailures(t *testing.T) {
	srv := newSyncServer(t, http.StatusInternalServerError, `{"error":"Internal server error"}`)
	core, logs := observer.New(zap.ErrorLevel)
	w := NewWatcher(Config{BaseURL: srv.URL}, zap.New(core).Sugar())

	w.OnSessionChange(SessionState{SignedIn: true, User: &SessionUser{ID: "user_1"}})
	w.Wait()

	assert.Equal(t, int32(1), srv.hits.Load(), "no retry")
	assert.Equal(t, 1, logs.FilterMessage("user sync failed").Len())
}

func TestWatcherSwallowsTransportErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := NewWatcher(Config{BaseURL: "http://127.0.0.1:1"}, zap.New(core).Sugar())

	w.OnSessionChange(SessionState{SignedIn: true, User: &SessionUser{ID: "user_1"}})
	w.Wait()
	assert.Equal(t, 1, logs.FilterMessage("user sync failed").Len())
}

func TestWatcherLogsCreated(t *testing.T) {
	srv := newSyncServer(t, http.StatusOK, `{"created":true}`)
	core, logs := observer.New(zap.InfoLevel)
	w := NewWatcher(Config{BaseURL: srv.URL}, zap.New(core).Sugar())

	w.OnSessionChange(SessionState{SignedIn: true, User: &SessionUser{ID: "user_1"}})
	w.Wait()
	assert.Equal(t, 1, logs.FilterMessage("user created in database").Len())
}

func TestSessionSubscription(t *testing.T) {
	srv := newSyncServer(t, http.StatusOK, `{"created":true}`)
	w := NewWatcher(Config{BaseURL: srv.URL}, zap.NewNop().Sugar())
	s := NewSession()

	detach := w.Attach(s)
	u := &SessionUser{ID: "user_1"}
	s.Set(SessionState{SignedIn: true, User: u})
	s.Set(SessionState{SignedIn: true, User: u})
	w.Wait()
	assert.Equal(t, int32(1), srv.hits.Load())

	detach()
	s.Set(SessionState{})
	s.Set(SessionState{SignedIn: true, User: &SessionUser{ID: "user_2"}})
	w.Wait()
	assert.Equal(t, int32(1), srv.hits.Load())
}
