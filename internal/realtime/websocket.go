package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/logging"
)

// WebSocketDialer speaks the same event protocol over a websocket, either
// straight to the provider or through the server relay. It carries no
// microphone track; turns are typed and answered audio goes to Sink.
type WebSocketDialer struct {
	URL    string
	Model  string
	Header http.Header
	Sink   AudioSink
	Dialer *websocket.Dialer
	Log    logrus.FieldLogger
}

type wsTransport struct {
	conn   *websocket.Conn
	feed   *feed
	closer closer
	sink   AudioSink
	log    logrus.FieldLogger
	sendMu sync.Mutex
}

// Dial opens the websocket with the credential as bearer auth
func (d *WebSocketDialer) Dial(ctx context.Context, cred Credential) (Transport, error) {
	if cred.Value == "" {
		return nil, ErrNoCredential
	}
	log := logging.OrDiscard(d.Log).WithField("transport", "websocket")

	endpoint, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}
	if d.Model != "" {
		q := endpoint.Query()
		q.Set("model", d.Model)
		endpoint.RawQuery = q.Encode()
	}

	header := http.Header{}
	for k, v := range d.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set("Authorization", "Bearer "+cred.Value)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &NegotiationError{Status: resp.StatusCode, Body: string(body)}
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	sink := d.Sink
	if sink == nil {
		sink = &DiscardSink{}
	}

	t := &wsTransport{conn: conn, feed: newFeed(), sink: sink, log: log}
	t.closer.add(func() error {
		t.sendMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.sendMu.Unlock()
		return conn.Close()
	})
	t.closer.add(func() error {
		sink.Detach()
		return nil
	})
	t.closer.add(t.feed.stop)

	go t.readLoop()

	log.Info("websocket connection established")
	return t, nil
}

func (t *wsTransport) readLoop() {
	defer t.Close()

	t.feed.push(Event{Kind: EventChannelOpened})
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.WithError(err).Debug("websocket read ended")
			}
			return
		}

		ev, err := ParseServerEvent(data)
		if err != nil {
			t.log.WithError(err).Warn("discarding unreadable server event")
			continue
		}
		if ev.Kind == EventOutputAudioDelta && ev.Audio != "" {
			if pcm, err := base64.StdEncoding.DecodeString(ev.Audio); err == nil {
				_ = t.sink.Play(pcm)
			}
		}
		if ev.Kind == EventIgnored {
			continue
		}
		t.feed.push(ev)
	}
}

func (t *wsTransport) Events() <-chan Event { return t.feed.events() }

func (t *wsTransport) Send(_ context.Context, ev ClientEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode client event: %w", err)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

func (t *wsTransport) SendText(ctx context.Context, text string) error {
	for _, ev := range textTurn(text) {
		if err := t.Send(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (t *wsTransport) Close() error {
	return t.closer.Close()
}
