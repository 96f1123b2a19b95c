package handler

import (
	"context"
	"net/http"
	"time"

	"aarath-auction/internal/liveview"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	bidhelpers "aarath-auction/services/bidding/helpers"
	"aarath-auction/services/realtime/helpers"
	"aarath-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// RealtimeServiceInterface is the part of the bidding coordinator a websocket client drives
type RealtimeServiceInterface interface {
	liveview.Source
	NewSession() *realtime.Session
	InitializeAuctionRoom(ctx context.Context, payload model.AuctionPayload) (bool, error)
	JoinAuctionRoom(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity) (bool, error)
	LeaveAuctionRoom(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity)
	PlaceBid(ctx context.Context, auctionID string, amount float64, user *model.UserIdentity) (string, error)
	TouchPresence(ctx context.Context, auctionID, userID string) error
	MinIncrementPercent() float64
}

// TokenVerifier resolves a bearer token to the user it was issued for
type TokenVerifier interface {
	Verify(token string) (*model.UserIdentity, error)
}

type WSHandler struct {
	service    RealtimeServiceInterface
	verifier   TokenVerifier
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
	pongWait   time.Duration
}

// NewWSHandler pings every heartbeat and drops a client that stays silent for two of them
func NewWSHandler(service RealtimeServiceInterface, verifier TokenVerifier, heartbeat time.Duration) *WSHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &WSHandler{
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingPeriod: heartbeat,
		pongWait:   2 * heartbeat,
	}
}

// ServeWS handles GET /ws
func (h *WSHandler) ServeWS(c *gin.Context) {
	user, err := h.verifier.Verify(helpers.TokenFromRequest(c.Request))
	if err != nil {
		status, message := bidhelpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		utils.Warn("ServeWS: handshake rejected", map[string]any{
			"remote": c.ClientIP(),
			"error":  err.Error(),
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the request
		utils.Warn("ServeWS: upgrade failed", map[string]any{"user_id": user.UserID, "error": err.Error()})
		return
	}

	cl := newClient(h, conn, user)
	utils.Info("ServeWS: client connected", map[string]any{
		"session_id": cl.sess.ID,
		"user_id":    user.UserID,
		"remote":     c.ClientIP(),
	})

	go cl.writePump()
	cl.readPump()
}
