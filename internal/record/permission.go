package record

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPermissionDenied  = errors.New("microphone access denied")
	ErrPermissionTimeout = errors.New("microphone authorization prompt timed out")
)

// AuthStatus is the platform's current microphone authorization state.
type AuthStatus int

const (
	AuthUndetermined AuthStatus = iota
	AuthGranted
	AuthDenied
)

// Authorizer answers microphone authorization queries. Request blocks until
// the user responds to the prompt.
type Authorizer interface {
	Status() AuthStatus
	Request(ctx context.Context) (bool, error)
}

// Gate caches the microphone authorization verdict for the whole process so
// multiple recorders never re-prompt. One Gate instance is shared by
// injection rather than hidden in package state.
type Gate struct {
	auth    Authorizer
	timeout time.Duration

	mu      sync.Mutex
	decided bool
	granted bool
}

func NewGate(auth Authorizer) *Gate {
	return &Gate{auth: auth, timeout: 5 * time.Second}
}

// Authorize resolves microphone access, prompting at most once per process.
// An unanswered prompt fails with ErrPermissionTimeout and is not cached, so
// a later attempt may prompt again.
func (g *Gate) Authorize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.decided {
		if g.granted {
			return nil
		}
		return ErrPermissionDenied
	}

	switch g.auth.Status() {
	case AuthGranted:
		g.decided, g.granted = true, true
		return nil
	case AuthDenied:
		g.decided, g.granted = true, false
		return ErrPermissionDenied
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type verdict struct {
		granted bool
		err     error
	}
	ch := make(chan verdict, 1)
	go func() {
		granted, err := g.auth.Request(reqCtx)
		ch <- verdict{granted, err}
	}()

	select {
	case v := <-ch:
		if v.err != nil {
			if errors.Is(v.err, context.DeadlineExceeded) {
				return ErrPermissionTimeout
			}
			return v.err
		}
		g.decided, g.granted = true, v.granted
		if !v.granted {
			return ErrPermissionDenied
		}
		return nil
	case <-reqCtx.Done():
		return ErrPermissionTimeout
	}
}

// SystemAuthorizer is the default authorizer. Desktop Linux audio servers
// expose no per-application microphone prompt, so access is reported granted
// and failures surface when the device is opened.
type SystemAuthorizer struct{}

func (SystemAuthorizer) Status() AuthStatus { return AuthGranted }

func (SystemAuthorizer) Request(context.Context) (bool, error) { return true, nil }
