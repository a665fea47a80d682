package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/api/middleware"
	"github.com/coachline/coachline/internal/broker"
	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/models"
)

const relaySecretKey = "relay_client_secret"

// RealtimeHandler serves the credential broker and the websocket relay
type RealtimeHandler struct {
	broker *broker.Broker
	cfg    config.RealtimeConfig
	dialer *websocket.Dialer
	log    logrus.FieldLogger
}

// NewRealtimeHandler creates a realtime handler
func NewRealtimeHandler(b *broker.Broker, cfg config.RealtimeConfig, log logrus.FieldLogger) *RealtimeHandler {
	return &RealtimeHandler{
		broker: b,
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		log:    logging.OrDiscard(log).WithField("component", "realtime"),
	}
}

// CreateSession mints an ephemeral credential for the caller and returns the
// provider's session object unchanged.
func (h *RealtimeHandler) CreateSession(c *fiber.Ctx) error {
	userContext := middleware.GetUserContext(c)
	if userContext == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	var req struct {
		Voice string `json:"voice"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	session, err := h.broker.Mint(c.UserContext(), userContext.UserID, req.Voice)
	if err != nil {
		return mintError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(session.Raw)
}

func mintError(c *fiber.Ctx, err error) error {
	var upstream *broker.UpstreamError
	switch {
	case errors.Is(err, broker.ErrConfiguration), errors.As(err, &upstream):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create realtime session",
		})
	}
}

// PrepareRelay mints the upstream credential before the websocket upgrade,
// so a provider failure reaches the client as a rejected handshake.
func (h *RealtimeHandler) PrepareRelay(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userContext := middleware.GetUserContext(c)
	if userContext == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	session, err := h.broker.Mint(c.UserContext(), userContext.UserID, c.Query("voice"))
	if err != nil {
		return mintError(c, err)
	}

	c.Locals(relaySecretKey, session.ClientSecret.Value)
	return c.Next()
}

// Relay pipes frames between the client socket and a fresh provider socket
// until either side goes away.
func (h *RealtimeHandler) Relay(conn *fiberws.Conn) {
	defer conn.Close()

	log := h.log
	if userContext, ok := conn.Locals("user_context").(*models.UserContext); ok {
		log = log.WithField("user_id", userContext.UserID)
	}

	secret, _ := conn.Locals(relaySecretKey).(string)
	if secret == "" {
		log.Error("relay opened without a credential")
		return
	}

	upstream, err := h.dialUpstream(secret)
	if err != nil {
		log.WithError(err).Error("relay upstream dial failed")
		_ = conn.WriteMessage(fiberws.TextMessage, []byte(`{"type":"error","error":{"message":"Could not connect to voice service"}}`))
		return
	}
	defer upstream.Close()

	log.Info("relay opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			mt, data, err := upstream.ReadMessage()
			if err != nil {
				_ = conn.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := upstream.WriteMessage(mt, data); err != nil {
			break
		}
	}

	_ = upstream.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = upstream.Close()
	<-done
	log.Info("relay closed")
}

func (h *RealtimeHandler) dialUpstream(secret string) (*websocket.Conn, error) {
	endpoint, err := url.Parse(h.cfg.WebSocketURL)
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("model", h.cfg.Model)
	endpoint.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+secret)
	header.Set("OpenAI-Beta", "realtime=v1")

	timeout := h.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	upstream, _, err := h.dialer.DialContext(ctx, endpoint.String(), header)
	return upstream, err
}
