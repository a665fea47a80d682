package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the provider-neutral category of a transport event
type EventKind string

const (
	EventConnectRequested         EventKind = "connect_requested"
	EventConnectFailed            EventKind = "connect_failed"
	EventChannelOpened            EventKind = "channel_opened"
	EventChannelClosed            EventKind = "channel_closed"
	EventSessionReady             EventKind = "session_ready"
	EventSpeechStarted            EventKind = "speech_started"
	EventSpeechStopped            EventKind = "speech_stopped"
	EventInputTranscriptFinalized EventKind = "input_transcript_finalized"
	EventInputTranscriptFailed    EventKind = "input_transcript_failed"
	EventTextSent                 EventKind = "text_sent"
	EventOutputAudioDelta         EventKind = "output_audio_delta"
	EventOutputTranscriptDelta    EventKind = "output_transcript_delta"
	EventOutputTranscriptDone     EventKind = "output_transcript_done"
	EventResponseDone             EventKind = "response_done"
	EventResponseFailed           EventKind = "response_failed"
	EventProviderError            EventKind = "provider_error"
	EventIgnored                  EventKind = "ignored"
)

// Error codes the provider uses for the conditions users can act on
const (
	CodeInsufficientQuota = "insufficient_quota"
	CodeRateLimitExceeded = "rate_limit_exceeded"
)

// Event is one item on the transport's ordered event stream
type Event struct {
	Kind EventKind
	// Type is the provider's event name, empty for locally generated events
	Type string
	// Text carries a transcript, a transcript token, or typed input
	Text string
	// Audio is a base64 chunk of synthesized speech (event channel transports only)
	Audio   string
	Code    string
	Message string
}

type providerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type       string         `json:"type"`
	Transcript string         `json:"transcript"`
	Delta      string         `json:"delta"`
	Error      *providerError `json:"error"`
	Response   *struct {
		Status        string `json:"status"`
		StatusDetails *struct {
			Error *providerError `json:"error"`
		} `json:"status_details"`
	} `json:"response"`
}

// ParseServerEvent maps one provider JSON event onto an Event. Types the
// conversation does not react to come back as EventIgnored.
func ParseServerEvent(data []byte) (Event, error) {
	var raw serverEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("invalid server event: %w", err)
	}
	if raw.Type == "" {
		return Event{}, fmt.Errorf("server event has no type")
	}

	ev := Event{Type: raw.Type, Kind: EventIgnored}
	switch raw.Type {
	case "session.created":
		ev.Kind = EventSessionReady
	case "input_audio_buffer.speech_started":
		ev.Kind = EventSpeechStarted
	case "input_audio_buffer.speech_stopped":
		ev.Kind = EventSpeechStopped
	case "conversation.item.input_audio_transcription.completed":
		ev.Kind = EventInputTranscriptFinalized
		ev.Text = raw.Transcript
	case "conversation.item.input_audio_transcription.failed":
		ev.Kind = EventInputTranscriptFailed
		ev.setError(raw.Error)
	case "response.audio.delta":
		ev.Kind = EventOutputAudioDelta
		ev.Audio = raw.Delta
	case "response.audio_transcript.delta":
		ev.Kind = EventOutputTranscriptDelta
		ev.Text = raw.Delta
	case "response.audio_transcript.done":
		ev.Kind = EventOutputTranscriptDone
		ev.Text = raw.Transcript
	case "response.done":
		ev.Kind = EventResponseDone
		if raw.Response != nil && raw.Response.Status == "failed" {
			ev.Kind = EventResponseFailed
			if raw.Response.StatusDetails != nil {
				ev.setError(raw.Response.StatusDetails.Error)
			}
		}
	case "error":
		ev.Kind = EventProviderError
		ev.setError(raw.Error)
	}
	return ev, nil
}

func (e *Event) setError(pe *providerError) {
	if pe == nil {
		return
	}
	e.Code = pe.Code
	e.Message = pe.Message
}

// rateLimited reports whether a provider error belongs to the rate limit class
func (e Event) rateLimited() bool {
	return e.Code == CodeRateLimitExceeded || strings.Contains(e.Message, "429")
}

// ContentPart is one part of a conversation item
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ConversationItem is a message injected into the provider's conversation
type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ClientEvent is sent from us to the provider over the event channel
type ClientEvent struct {
	Type  string            `json:"type"`
	Item  *ConversationItem `json:"item,omitempty"`
	Audio string            `json:"audio,omitempty"`
}

// textTurn returns the two events that inject a typed user turn and ask the
// model to answer it.
func textTurn(text string) []ClientEvent {
	return []ClientEvent{
		{
			Type: "conversation.item.create",
			Item: &ConversationItem{
				Type:    "message",
				Role:    "user",
				Content: []ContentPart{{Type: "input_text", Text: text}},
			},
		},
		{Type: "response.create"},
	}
}
