package realtime

import (
	"github.com/coachline/coachline/internal/models"
)

// State is the coarse conversational mode shown to the user
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Live reports whether the state belongs to an open channel
func (s State) Live() bool {
	return s == StateListening || s == StateThinking || s == StateSpeaking
}

// GreetingText opens every conversation once the event channel is up
const GreetingText = `Hi! I'm your AI conversation partner for this feedback session. Before we start, a few quick things: You can speak naturally like we're having coffee. If you need a break, just say "pause" and I'll remember where we left off. Your responses are private and anonymous. Sound good?`

// Snapshot is everything Transition needs to decide the next step
type Snapshot struct {
	State State
	// Partial accumulates output transcript tokens until the utterance is done
	Partial string
	// ResponseFinalized is set once the current AI utterance has been finalized
	ResponseFinalized bool
}

// Effect is work the runner performs after a transition
type Effect interface {
	effect()
}

// FinalizeMessage appends a complete utterance to the transcript and
// persists it. Duplicate marks a second finalize for the same response.
type FinalizeMessage struct {
	Sender    models.Sender
	Text      string
	Duplicate bool
}

// Greet shows the opening message. It is not persisted.
type Greet struct {
	Text string
}

// CaptionUpdate carries the live caption for the AI's current utterance
type CaptionUpdate struct {
	Text string
}

// Notify surfaces an alert to the user
type Notify struct {
	Alert Alert
}

// Release tears the transport down
type Release struct{}

func (FinalizeMessage) effect() {}
func (Greet) effect()           {}
func (CaptionUpdate) effect()   {}
func (Notify) effect()          {}
func (Release) effect()         {}

// Transition is the conversation state machine. It never performs I/O; the
// returned effects are executed by the caller in order.
//
// Provider errors raise an alert in every state, idle and connecting
// included, but only move the state while a channel is open.
func Transition(s Snapshot, ev Event) (Snapshot, []Effect) {
	switch ev.Kind {
	case EventConnectRequested:
		if s.State != StateIdle {
			return s, nil
		}
		return Snapshot{State: StateConnecting}, nil

	case EventConnectFailed:
		if s.State != StateConnecting {
			return s, nil
		}
		return Snapshot{State: StateIdle}, []Effect{Notify{connectAlert(ev.Message)}, Release{}}

	case EventChannelOpened:
		if s.State != StateConnecting {
			return s, nil
		}
		return Snapshot{State: StateListening}, []Effect{Greet{Text: GreetingText}}

	case EventChannelClosed:
		if s.State == StateIdle {
			return s, nil
		}
		return Snapshot{State: StateIdle}, []Effect{Release{}}
	}

	// Everything below needs an open channel
	if !s.State.Live() {
		if ev.Kind == EventProviderError {
			return s, []Effect{Notify{providerAlert(ev, "Error", "An error occurred")}}
		}
		return s, nil
	}

	switch ev.Kind {
	case EventSpeechStarted:
		s.State = StateListening
		s.Partial = ""
		return s, []Effect{CaptionUpdate{Text: ""}}

	case EventSpeechStopped:
		if s.State == StateListening {
			s.State = StateThinking
		}
		return s, nil

	case EventInputTranscriptFinalized:
		if s.State != StateSpeaking {
			s.State = StateThinking
		}
		if ev.Text == "" {
			return s, nil
		}
		return s, []Effect{FinalizeMessage{Sender: models.SenderUser, Text: ev.Text}}

	case EventTextSent:
		s.State = StateThinking
		return s, []Effect{FinalizeMessage{Sender: models.SenderUser, Text: ev.Text}}

	case EventInputTranscriptFailed:
		if ev.rateLimited() {
			return s, []Effect{Notify{Alert{
				Kind:        AlertTranscription,
				Title:       "Transcription Unavailable",
				Description: "Voice transcription temporarily unavailable due to rate limits.",
			}}}
		}
		return s, nil

	case EventOutputTranscriptDelta:
		s.State = StateSpeaking
		s.Partial += ev.Text
		s.ResponseFinalized = false
		return s, []Effect{CaptionUpdate{Text: s.Partial}}

	case EventOutputAudioDelta:
		s.State = StateSpeaking
		return s, nil

	case EventOutputTranscriptDone:
		text := s.Partial
		if text == "" {
			text = ev.Text
		}
		var effects []Effect
		if text != "" {
			effects = append(effects, FinalizeMessage{Sender: models.SenderAI, Text: text, Duplicate: s.ResponseFinalized})
			s.ResponseFinalized = true
		}
		s.State = StateListening
		s.Partial = ""
		return s, effects

	case EventResponseDone:
		s.State = StateListening
		return s, nil

	case EventResponseFailed:
		s.State = StateListening
		s.Partial = ""
		return s, []Effect{Notify{providerAlert(ev, "Response Failed", "Failed to generate response")}}

	case EventProviderError:
		s.State = StateListening
		s.Partial = ""
		return s, []Effect{Notify{providerAlert(ev, "Error", "An error occurred")}}
	}

	return s, nil
}
