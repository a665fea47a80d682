package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coachline/coachline/internal/client"
	"github.com/coachline/coachline/internal/lifecycle"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/realtime"
)

const (
	defaultModel       = "gpt-4o-realtime-preview-2024-12-17"
	defaultProviderURL = "https://api.openai.com/v1/realtime"
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start a coaching conversation",
	Long: `Start a coaching conversation. Type a line to speak to the coach.
"pause" ends the session so it can be picked up later, "stop" completes it
and prints a summary. Ctrl-C pauses.`,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().String("transport", "relay", "How to reach the provider: webrtc, ws or relay")
	talkCmd.Flags().String("voice", "alloy", "Coach voice")
	talkCmd.Flags().String("model", defaultModel, "Realtime model")
	talkCmd.Flags().String("provider-url", defaultProviderURL, "Provider realtime endpoint for webrtc and ws")
	rootCmd.AddCommand(talkCmd)
}

// connection picks the dialer and the credential source for a transport
func connection(c *client.Client, transport, voice, model, providerURL string, log logrus.FieldLogger) (realtime.Dialer, realtime.CredentialSource, error) {
	switch transport {
	case "webrtc":
		return &realtime.WebRTCDialer{
			NegotiationURL: providerURL,
			Model:          model,
			Media:          realtime.SilentSource{},
			Sink:           &realtime.DiscardSink{},
			Log:            log,
		}, c, nil

	case "ws":
		return &realtime.WebSocketDialer{
			URL:   websocketURL(providerURL),
			Model: model,
			Log:   log,
		}, c, nil

	case "relay":
		relay, err := relayURL(settings.GetString("server"), voice)
		if err != nil {
			return nil, nil, err
		}
		return &realtime.WebSocketDialer{URL: relay, Log: log}, c.RelayCredentials(), nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q", transport)
	}
}

func websocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}

func relayURL(server, voice string) (string, error) {
	u, err := url.Parse(websocketURL(strings.TrimRight(server, "/")))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	u.Path += "/api/v1/realtime/relay"
	if voice != "" {
		q := u.Query()
		q.Set("voice", voice)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runTalk(cmd *cobra.Command, _ []string) error {
	c, err := requireLogin()
	if err != nil {
		return err
	}
	transport, _ := cmd.Flags().GetString("transport")
	voice, _ := cmd.Flags().GetString("voice")
	model, _ := cmd.Flags().GetString("model")
	providerURL, _ := cmd.Flags().GetString("provider-url")

	log := newLogger()
	out := newConsole(cmd.OutOrStdout())

	dialer, creds, err := connection(c, transport, voice, model, providerURL, log)
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager(c, lifecycle.WithAlerter(out), lifecycle.WithLogger(log))
	conv := realtime.NewConversation(creds, dialer,
		realtime.WithSink(manager),
		realtime.WithAlerter(out),
		realtime.WithVoice(voice),
		realtime.WithLogger(log),
		realtime.WithCaptions(out.caption),
		realtime.WithStateListener(out.state),
		realtime.WithMessageListener(out.message),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A storage failure has already been reported; talking still works
	session, _ := manager.StartSession(ctx)
	if session != nil {
		out.info("Session " + session.ID.String())
	}

	if err := conv.Connect(ctx); err != nil {
		if session != nil {
			endSession(manager, models.SessionPaused, out)
		}
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			hangUp(conv, manager, models.SessionPaused, out)
			return nil

		case line, ok := <-lines:
			if !ok {
				hangUp(conv, manager, models.SessionPaused, out)
				return nil
			}
			switch text := strings.TrimSpace(line); text {
			case "":
			case "pause":
				hangUp(conv, manager, models.SessionPaused, out)
				return nil
			case "stop":
				if hangUp(conv, manager, models.SessionCompleted, out) {
					summarize(manager, session.ID, out)
				}
				return nil
			default:
				if err := conv.SendText(ctx, text); err != nil {
					out.Alert(realtime.Alert{Kind: realtime.AlertConnection, Title: "Not sent", Description: err.Error()})
				}
			}
		}
	}
}

// hangUp releases the connection right away, then lets queued messages reach
// the session before it is closed. It reports whether a session was closed.
func hangUp(conv *realtime.Conversation, m *lifecycle.Manager, status models.SessionStatus, out *console) bool {
	conv.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conv.Flush(ctx); err != nil {
		out.Alert(realtime.Alert{Kind: realtime.AlertStorage, Title: "Messages Not Saved", Description: "Some messages were still being saved when the session closed."})
	}
	return endSession(m, status, out)
}

// endSession runs on a fresh context so an interrupt still closes the row
func endSession(m *lifecycle.Manager, status models.SessionStatus, out *console) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	session, err := m.EndSession(ctx, status)
	if err != nil {
		out.Alert(realtime.Alert{Kind: realtime.AlertStorage, Title: "Session Not Saved", Description: err.Error()})
		return false
	}
	if session == nil {
		return false
	}
	duration := 0
	if session.DurationSeconds != nil {
		duration = *session.DurationSeconds
	}
	out.success(fmt.Sprintf("Session %s after %s", session.Status, time.Duration(duration)*time.Second))
	return true
}

func summarize(m *lifecycle.Manager, sessionID uuid.UUID, out *console) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	out.info("Summarizing…")
	session, err := m.GenerateSummary(ctx, sessionID)
	if err != nil {
		out.Alert(realtime.Alert{Kind: realtime.AlertGeneric, Title: "Summary Failed", Description: err.Error()})
		return
	}
	out.printf("%s", renderSummary(session))
}
