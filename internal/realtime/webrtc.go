package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/logging"
)

// EventChannelLabel is the data channel the provider speaks its event protocol on
const EventChannelLabel = "oai-events"

// WebRTCDialer negotiates a peer connection with the provider: one outbound
// microphone track, one inbound speech track, and the event data channel.
type WebRTCDialer struct {
	NegotiationURL string
	Model          string
	Media          MediaSource
	Sink           AudioSink
	HTTPClient     *http.Client
	Config         webrtc.Configuration
	Log            logrus.FieldLogger
}

type webrtcTransport struct {
	feed   *feed
	closer closer
	dc     *webrtc.DataChannel
	sendMu sync.Mutex
}

// Dial acquires the microphone, builds the peer connection and completes the
// SDP exchange. Every failure releases what was acquired so far.
func (d *WebRTCDialer) Dial(ctx context.Context, cred Credential) (Transport, error) {
	if cred.Value == "" {
		return nil, ErrNoCredential
	}
	log := logging.OrDiscard(d.Log).WithField("transport", "webrtc")

	source := d.Media
	if source == nil {
		source = SilentSource{}
	}
	sink := d.Sink
	if sink == nil {
		sink = &DiscardSink{}
	}

	t := &webrtcTransport{feed: newFeed()}

	mic, err := source.Open(ctx, VoiceConstraints)
	if err != nil {
		return nil, &MediaAcquisitionError{Err: err}
	}
	t.closer.add(mic.Stop)

	pc, err := webrtc.NewPeerConnection(d.Config)
	if err != nil {
		_ = t.closer.Close()
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "coachline-mic",
	)
	if err != nil {
		_ = pc.Close()
		_ = t.closer.Close()
		return nil, fmt.Errorf("failed to create microphone track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		_ = t.closer.Close()
		return nil, fmt.Errorf("failed to add microphone track: %w", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel(EventChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		_ = t.closer.Close()
		return nil, fmt.Errorf("failed to create event channel: %w", err)
	}
	t.dc = dc

	t.closer.add(dc.Close)
	t.closer.add(pc.Close)
	t.closer.add(func() error {
		sink.Detach()
		return nil
	})
	t.closer.add(t.feed.stop)

	// RTCP has to be read for interceptors to run
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	go func() {
		for {
			frame, duration, err := mic.ReadFrame()
			if err != nil {
				return
			}
			if err := track.WriteSample(media.Sample{Data: frame, Duration: duration}); err != nil {
				log.WithError(err).Debug("dropped microphone frame")
			}
		}
	}()

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.WithField("codec", remote.Codec().MimeType).Info("received remote audio track")
		for {
			pkt, _, err := remote.ReadRTP()
			if err != nil {
				return
			}
			if err := sink.Play(pkt.Payload); err != nil {
				log.WithError(err).Debug("audio sink rejected frame")
			}
		}
	})

	dc.OnOpen(func() {
		log.Info("event channel opened")
		t.feed.push(Event{Kind: EventChannelOpened})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ev, err := ParseServerEvent(msg.Data)
		if err != nil {
			log.WithError(err).Warn("discarding unreadable server event")
			return
		}
		if ev.Kind == EventIgnored {
			log.WithField("type", ev.Type).Debug("server event")
			return
		}
		t.feed.push(ev)
	})
	dc.OnClose(func() {
		log.Info("event channel closed")
		go t.Close()
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.WithField("state", state.String()).Debug("peer connection state changed")
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			go t.Close()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		_ = t.Close()
		return nil, ctx.Err()
	}

	answer, err := d.negotiate(ctx, cred, pc.LocalDescription().SDP)
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("failed to apply answer: %w", err)
	}

	log.Info("webrtc connection established")
	return t, nil
}

// negotiate posts the SDP offer and returns the provider's answer
func (d *WebRTCDialer) negotiate(ctx context.Context, cred Credential, offer string) (string, error) {
	endpoint, err := url.Parse(d.NegotiationURL)
	if err != nil {
		return "", fmt.Errorf("invalid negotiation url: %w", err)
	}
	if d.Model != "" {
		q := endpoint.Query()
		q.Set("model", d.Model)
		endpoint.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("failed to build negotiation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Value)
	req.Header.Set("Content-Type", "application/sdp")

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("negotiation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read negotiation answer: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &NegotiationError{Status: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

func (t *webrtcTransport) Events() <-chan Event { return t.feed.events() }

func (t *webrtcTransport) Send(_ context.Context, ev ClientEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode client event: %w", err)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotConnected
	}
	return t.dc.SendText(string(data))
}

func (t *webrtcTransport) SendText(ctx context.Context, text string) error {
	for _, ev := range textTurn(text) {
		if err := t.Send(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (t *webrtcTransport) Close() error {
	err := t.closer.Close()
	if errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
