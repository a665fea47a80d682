// Package realtime runs a live voice conversation with the hosted speech
// model: transports, the provider event protocol, and the state machine that
// turns streamed events into finalized messages.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/models"
)

// ErrAlreadyConnected is returned by Connect unless the conversation is idle
var ErrAlreadyConnected = errors.New("conversation is already connected")

// MessageSink receives every finalized message, in order
type MessageSink interface {
	SaveMessage(ctx context.Context, sender models.Sender, content string) error
}

// Message is one entry of the in-memory transcript
type Message struct {
	Sender    models.Sender
	Text      string
	Timestamp time.Time
	Persisted bool
}

// Option customises a Conversation
type Option func(*Conversation)

func WithSink(s MessageSink) Option { return func(c *Conversation) { c.sink = s } }
func WithAlerter(a Alerter) Option { return func(c *Conversation) { c.alerter = a } }
func WithVoice(v string) Option { return func(c *Conversation) { c.voice = v } }
func WithLogger(l logrus.FieldLogger) Option { return func(c *Conversation) { c.log = logging.OrDiscard(l) } }

// WithCaptions registers a listener for the AI's live caption
func WithCaptions(fn func(string)) Option { return func(c *Conversation) { c.onCaption = fn } }

// WithStateListener is called after every state change
func WithStateListener(fn func(State)) Option { return func(c *Conversation) { c.onState = fn } }

// WithMessageListener is called with every transcript entry, the greeting
// included. With a sink configured, finalized messages are reported after
// their save was attempted so Persisted is settled.
func WithMessageListener(fn func(Message)) Option { return func(c *Conversation) { c.onMessage = fn } }

// WithSaveTimeout bounds each MessageSink call. Saves never hold up state
// changes or Disconnect.
func WithSaveTimeout(d time.Duration) Option { return func(c *Conversation) { c.saveTimeout = d } }

// Conversation owns one realtime connection attempt at a time. All
// transitions and their effects run one at a time in event arrival order.
type Conversation struct {
	creds  CredentialSource
	dialer Dialer

	sink        MessageSink
	alerter     Alerter
	onCaption   func(string)
	onState     func(State)
	onMessage   func(Message)
	voice       string
	saveTimeout time.Duration
	log         logrus.FieldLogger

	// step serialises Transition and effect execution
	step      sync.Mutex
	snap      Snapshot
	gen       uint64
	transport Transport
	cancel    context.CancelFunc

	mu       sync.RWMutex
	state    State
	messages []Message

	// saves are issued one at a time, in finalize order, off the step lock
	saveMu   sync.Mutex
	saves    []pendingSave
	draining chan struct{}
}

type pendingSave struct {
	index  int
	sender models.Sender
	text   string
}

// NewConversation creates an idle conversation
func NewConversation(creds CredentialSource, dialer Dialer, opts ...Option) *Conversation {
	c := &Conversation{
		creds:       creds,
		dialer:      dialer,
		voice:       "alloy",
		saveTimeout: 10 * time.Second,
		log:         logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect fetches a credential and opens the transport. It returns once the
// handshake completes; the channel-opened event arrives on the event loop.
// A failure leaves the conversation idle and raises a connection alert.
func (c *Conversation) Connect(ctx context.Context) error {
	c.step.Lock()
	if c.snap.State != StateIdle {
		c.step.Unlock()
		return ErrAlreadyConnected
	}
	c.gen++
	gen := c.gen
	connectCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.apply(Event{Kind: EventConnectRequested})
	c.step.Unlock()

	defer cancel()

	t, err := c.open(connectCtx)
	if err != nil {
		c.log.WithError(err).Error("connection error")
		c.dispatch(gen, Event{Kind: EventConnectFailed, Message: err.Error()})
		return err
	}

	c.step.Lock()
	if c.gen != gen || c.snap.State != StateConnecting {
		c.step.Unlock()
		_ = t.Close()
		return fmt.Errorf("conversation was disconnected while connecting: %w", context.Canceled)
	}
	c.transport = t
	c.step.Unlock()

	go c.loop(gen, t)
	return nil
}

func (c *Conversation) open(ctx context.Context) (Transport, error) {
	cred, err := c.creds.Credential(ctx, c.voice)
	if err != nil {
		return nil, fmt.Errorf("failed to get session token: %w", err)
	}
	if cred.Value == "" {
		return nil, ErrNoCredential
	}
	return c.dialer.Dial(ctx, cred)
}

func (c *Conversation) loop(gen uint64, t Transport) {
	for ev := range t.Events() {
		c.dispatch(gen, ev)
	}
	c.dispatch(gen, Event{Kind: EventChannelClosed})
}

// Disconnect tears the connection down from any state
func (c *Conversation) Disconnect() {
	c.step.Lock()
	defer c.step.Unlock()
	c.apply(Event{Kind: EventChannelClosed})
}

// SendText injects a typed user turn and asks the model to respond
func (c *Conversation) SendText(ctx context.Context, text string) error {
	c.step.Lock()
	defer c.step.Unlock()

	if !c.snap.State.Live() || c.transport == nil {
		return ErrNotConnected
	}
	// Sent under step so the reply cannot overtake the user's own turn
	if err := c.transport.SendText(ctx, text); err != nil {
		return err
	}
	c.apply(Event{Kind: EventTextSent, Text: text})
	return nil
}

// State returns the current coarse state
func (c *Conversation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Messages returns a copy of the transcript so far
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.messages...)
}

// dispatch applies ev unless it belongs to an earlier connection attempt
func (c *Conversation) dispatch(gen uint64, ev Event) {
	c.step.Lock()
	defer c.step.Unlock()
	if gen != c.gen {
		return
	}
	c.apply(ev)
}

// apply must be called with step held
func (c *Conversation) apply(ev Event) {
	prev := c.snap.State
	next, effects := Transition(c.snap, ev)
	c.snap = next

	if next.State != prev {
		c.log.WithFields(logrus.Fields{"from": prev.String(), "to": next.State.String(), "event": ev.Kind}).Debug("state changed")
		c.mu.Lock()
		c.state = next.State
		c.mu.Unlock()
		if c.onState != nil {
			c.onState(next.State)
		}
	}

	for _, eff := range effects {
		c.run(eff)
	}
}

func (c *Conversation) run(eff Effect) {
	switch e := eff.(type) {
	case FinalizeMessage:
		if e.Duplicate {
			c.log.WithField("sender", e.Sender).Warn("second finalize for the same response, keeping both messages")
		}
		msg := Message{Sender: e.Sender, Text: e.Text, Timestamp: time.Now()}
		if c.sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
			err := c.sink.SaveMessage(ctx, e.Sender, e.Text)
			cancel()
			if err != nil {
				c.log.WithError(err).Error("failed to save message")
			} else {
				msg.Persisted = true
			}
		}
		c.appendMessage(msg)

	case Greet:
		c.appendMessage(Message{Sender: models.SenderAI, Text: e.Text, Timestamp: time.Now()})

	case CaptionUpdate:
		if c.onCaption != nil {
			c.onCaption(e.Text)
		}

	case Notify:
		c.log.WithFields(logrus.Fields{"kind": e.Alert.Kind, "title": e.Alert.Title}).Warn(e.Alert.Description)
		if c.alerter != nil {
			c.alerter.Alert(e.Alert)
		}

	case Release:
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		if c.transport != nil {
			if err := c.transport.Close(); err != nil {
				c.log.WithError(err).Warn("transport teardown reported errors")
			}
			c.transport = nil
		}
	}
}

// enqueueSave hands a finalized message to the single save worker, starting
// it if it is not running
func (c *Conversation) enqueueSave(p pendingSave) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	c.saves = append(c.saves, p)
	if c.draining == nil {
		c.draining = make(chan struct{})
		go c.drainSaves(c.draining)
	}
}

func (c *Conversation) drainSaves(done chan struct{}) {
	for {
		c.saveMu.Lock()
		if len(c.saves) == 0 {
			c.draining = nil
			c.saveMu.Unlock()
			close(done)
			return
		}
		p := c.saves[0]
		c.saves = c.saves[1:]
		c.saveMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
		err := c.sink.SaveMessage(ctx, p.sender, p.text)
		cancel()
		if err != nil {
			c.log.WithError(err).WithField("sender", p.sender).Error("failed to save message")
		}

		c.mu.Lock()
		c.messages[p.index].Persisted = err == nil
		m := c.messages[p.index]
		c.mu.Unlock()

		if c.onMessage != nil {
			c.onMessage(m)
		}
	}
}

// Flush waits until every finalized message has been handed to the sink.
// Disconnect does not wait for saves; call Flush before closing the session
// so late messages still reach it.
func (c *Conversation) Flush(ctx context.Context) error {
	c.saveMu.Lock()
	done := c.draining
	c.saveMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conversation) appendMessage(m Message) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()

	if c.onMessage != nil {
		c.onMessage(m)
	}
}
