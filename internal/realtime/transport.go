package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotConnected is returned when sending on a transport that is not open
	ErrNotConnected = errors.New("realtime channel is not open")
	// ErrNoCredential is returned when the broker answered without a usable secret
	ErrNoCredential = errors.New("invalid session response - no client secret")
	// ErrMicrophoneStopped ends a microphone's frame stream
	ErrMicrophoneStopped = errors.New("microphone stopped")
)

// Credential is a single-use ephemeral secret for one realtime session.
// It must not be logged or kept after Dial returns.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

func (c Credential) String() string { return "Credential{redacted}" }

// CredentialSource mints a fresh credential for every connect attempt
type CredentialSource interface {
	Credential(ctx context.Context, voice string) (Credential, error)
}

// Transport is one open realtime connection. Events are delivered in arrival
// order and the channel is closed once the connection is gone.
type Transport interface {
	Events() <-chan Event
	Send(ctx context.Context, ev ClientEvent) error
	SendText(ctx context.Context, text string) error
	Close() error
}

// Dialer opens transports
type Dialer interface {
	Dial(ctx context.Context, cred Credential) (Transport, error)
}

// NegotiationError is returned when the provider rejects the connection handshake
type NegotiationError struct {
	Status int
	Body   string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("failed to connect to realtime provider: %d", e.Status)
}

// MediaAcquisitionError is returned when the microphone cannot be opened
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

// closer runs its steps once, in the order they were added, however many
// exit paths call it.
type closer struct {
	once  sync.Once
	mu    sync.Mutex
	steps []func() error
	err   error
}

func (c *closer) add(step func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, step)
}

func (c *closer) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		steps := c.steps
		c.steps = nil
		c.mu.Unlock()

		var errs []error
		for _, step := range steps {
			if err := step(); err != nil {
				errs = append(errs, err)
			}
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}

// feed is the event stream of one transport. Pushes after stop are dropped
// and a pending push never blocks stop.
type feed struct {
	mu      sync.Mutex
	ch      chan Event
	done    chan struct{}
	stopped bool
	once    sync.Once
}

func newFeed() *feed {
	return &feed{
		ch:   make(chan Event, 64),
		done: make(chan struct{}),
	}
}

func (f *feed) push(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	select {
	case f.ch <- ev:
	case <-f.done:
	}
}

func (f *feed) stop() error {
	f.once.Do(func() {
		close(f.done)
		f.mu.Lock()
		f.stopped = true
		close(f.ch)
		f.mu.Unlock()
	})
	return nil
}

func (f *feed) events() <-chan Event { return f.ch }
