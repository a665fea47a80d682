package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerEvent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Event
	}{
		{
			name: "session created",
			in:   `{"type":"session.created","session":{"id":"s"}}`,
			want: Event{Kind: EventSessionReady, Type: "session.created"},
		},
		{
			name: "speech started",
			in:   `{"type":"input_audio_buffer.speech_started","audio_start_ms":120}`,
			want: Event{Kind: EventSpeechStarted, Type: "input_audio_buffer.speech_started"},
		},
		{
			name: "input transcript",
			in:   `{"type":"conversation.item.input_audio_transcription.completed","transcript":"I like my job"}`,
			want: Event{Kind: EventInputTranscriptFinalized, Type: "conversation.item.input_audio_transcription.completed", Text: "I like my job"},
		},
		{
			name: "input transcript failed",
			in:   `{"type":"conversation.item.input_audio_transcription.failed","error":{"code":"rate_limit_exceeded","message":"slow"}}`,
			want: Event{Kind: EventInputTranscriptFailed, Type: "conversation.item.input_audio_transcription.failed", Code: "rate_limit_exceeded", Message: "slow"},
		},
		{
			name: "transcript delta",
			in:   `{"type":"response.audio_transcript.delta","delta":"Hel"}`,
			want: Event{Kind: EventOutputTranscriptDelta, Type: "response.audio_transcript.delta", Text: "Hel"},
		},
		{
			name: "audio delta",
			in:   `{"type":"response.audio.delta","delta":"AAAA"}`,
			want: Event{Kind: EventOutputAudioDelta, Type: "response.audio.delta", Audio: "AAAA"},
		},
		{
			name: "transcript done",
			in:   `{"type":"response.audio_transcript.done","transcript":"Hello"}`,
			want: Event{Kind: EventOutputTranscriptDone, Type: "response.audio_transcript.done", Text: "Hello"},
		},
		{
			name: "response completed",
			in:   `{"type":"response.done","response":{"status":"completed"}}`,
			want: Event{Kind: EventResponseDone, Type: "response.done"},
		},
		{
			name: "response failed on quota",
			in:   `{"type":"response.done","response":{"status":"failed","status_details":{"error":{"code":"insufficient_quota","message":"no credits"}}}}`,
			want: Event{Kind: EventResponseFailed, Type: "response.done", Code: "insufficient_quota", Message: "no credits"},
		},
		{
			name: "provider error",
			in:   `{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"nope"}}`,
			want: Event{Kind: EventProviderError, Type: "error", Code: "bad", Message: "nope"},
		},
		{
			name: "unhandled type",
			in:   `{"type":"rate_limits.updated"}`,
			want: Event{Kind: EventIgnored, Type: "rate_limits.updated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServerEvent([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseServerEvent_Invalid(t *testing.T) {
	_, err := ParseServerEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseServerEvent([]byte(`{"delta":"x"}`))
	assert.Error(t, err)
}

func TestCredentialNeverPrintsSecret(t *testing.T) {
	c := Credential{Value: "ek_secret"}
	assert.NotContains(t, c.String(), "ek_secret")
}
