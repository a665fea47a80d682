package realtime

// AlertKind groups alerts by what the user can do about them
type AlertKind string

const (
	AlertQuota         AlertKind = "quota"
	AlertRateLimit     AlertKind = "rate_limit"
	AlertTranscription AlertKind = "transcription"
	AlertConnection    AlertKind = "connection"
	AlertStorage       AlertKind = "storage"
	AlertGeneric       AlertKind = "generic"
)

// Alert is a user-visible notification
type Alert struct {
	Kind        AlertKind
	Title       string
	Description string
}

// Alerter receives alerts raised during a conversation
type Alerter interface {
	Alert(Alert)
}

// AlerterFunc adapts a function to Alerter
type AlerterFunc func(Alert)

func (f AlerterFunc) Alert(a Alert) { f(a) }

func providerAlert(ev Event, title, fallback string) Alert {
	switch ev.Code {
	case CodeInsufficientQuota:
		return Alert{
			Kind:        AlertQuota,
			Title:       "Quota Exceeded",
			Description: "The AI service has reached its usage limit. Please add credits to your provider account.",
		}
	case CodeRateLimitExceeded:
		return Alert{
			Kind:        AlertRateLimit,
			Title:       "Rate Limited",
			Description: "Too many requests. Please wait a moment and try again.",
		}
	}

	desc := ev.Message
	if desc == "" {
		desc = fallback
	}
	return Alert{Kind: AlertGeneric, Title: title, Description: desc}
}

func connectAlert(message string) Alert {
	if message == "" {
		message = "Could not connect to voice service"
	}
	return Alert{Kind: AlertConnection, Title: "Connection Failed", Description: message}
}
