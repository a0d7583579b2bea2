package issuer

import (
	"context"
	"sync"
)

// Session is the single-slot holder of the current session token.
// An empty token means no session.
type Session struct {
	mu       sync.RWMutex
	token    string
	watchers map[chan string]struct{}
}

func newSession() *Session {
	return &Session{watchers: make(map[chan string]struct{})}
}

// Token returns the current token and whether one is set.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *Session) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		return
	}
	s.token = token
	for ch := range s.watchers {
		publish(ch, token)
	}
}

func (s *Session) clear() { s.set("") }

// Watch streams the current token and every later change until ctx is done.
// Slow readers only observe the latest value.
func (s *Session) Watch(ctx context.Context) <-chan string {
	ch := make(chan string, 1)

	s.mu.Lock()
	ch <- s.token
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// publish replaces any unread value; callers hold s.mu.
func publish(ch chan string, token string) {
	select {
	case <-ch:
	default:
	}
	ch <- token
}
