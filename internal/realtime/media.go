package realtime

import (
	"context"
	"sync"
	"time"
)

// AudioConstraints describes the microphone capture we ask for
type AudioConstraints struct {
	SampleRate       int
	ChannelCount     int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// VoiceConstraints is the capture profile used for every conversation
var VoiceConstraints = AudioConstraints{
	SampleRate:       24000,
	ChannelCount:     1,
	EchoCancellation: true,
	NoiseSuppression: true,
	AutoGainControl:  true,
}

// MediaSource opens the microphone
type MediaSource interface {
	Open(ctx context.Context, constraints AudioConstraints) (Microphone, error)
}

// Microphone yields encoded Opus frames until it is stopped
type Microphone interface {
	ReadFrame() (frame []byte, duration time.Duration, err error)
	Stop() error
}

// AudioSink plays the model's synthesized speech
type AudioSink interface {
	Play(payload []byte) error
	Detach()
}

// opusSilence is a single 20ms Opus frame that decodes to silence
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilentSource produces a microphone that sends Opus silence. Hosts without
// an audio device use it to keep the outbound track alive.
type SilentSource struct{}

func (SilentSource) Open(context.Context, AudioConstraints) (Microphone, error) {
	return &silentMic{stop: make(chan struct{}), tick: time.NewTicker(20 * time.Millisecond)}, nil
}

type silentMic struct {
	once sync.Once
	stop chan struct{}
	tick *time.Ticker
}

func (m *silentMic) ReadFrame() ([]byte, time.Duration, error) {
	select {
	case <-m.stop:
		return nil, 0, ErrMicrophoneStopped
	case <-m.tick.C:
		return opusSilence, 20 * time.Millisecond, nil
	}
}

func (m *silentMic) Stop() error {
	m.once.Do(func() {
		m.tick.Stop()
		close(m.stop)
	})
	return nil
}

// DiscardSink drops audio and counts what it was given
type DiscardSink struct {
	mu       sync.Mutex
	frames   int
	detached bool
}

func (s *DiscardSink) Play([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.detached {
		s.frames++
	}
	return nil
}

func (s *DiscardSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}

// Frames reports how many frames were played before detach
func (s *DiscardSink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Detached reports whether the sink has been released
func (s *DiscardSink) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}
