package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"typerush/internal/auth"
	"typerush/internal/model"
	"typerush/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// RealtimeHandler streams row changes to clients over a websocket.
type RealtimeHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the game is embedded in the platform's iframe on another origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SubscriptionFilter builds the hub filter for a caller. The caller sees
// its own user and payment rows; users changes from other players arrive
// without a row image so clients can refresh the leaderboard.
func SubscriptionFilter(userID, tables string) realtime.Filter {
	f := realtime.Filter{
		UserID:    userID,
		Broadcast: []string{model.TableUsers},
	}
	for _, t := range strings.Split(tables, ",") {
		t = strings.TrimSpace(t)
		if t == model.TableUsers || t == model.TablePayments {
			f.Tables = append(f.Tables, t)
		}
	}
	return f
}

// Redact strips the row image from events not owned by userID.
func Redact(ev model.ChangeEvent, userID string) model.ChangeEvent {
	if ev.OwnerID() != userID {
		ev.Row = nil
	}
	return ev
}

// HandleSubscribe upgrades the connection and forwards matching events
// until either side closes.
func (h *RealtimeHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	logger := log.Ctx(r.Context()).With().Str("user_id", userID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(SubscriptionFilter(userID, r.URL.Query().Get("tables")))
	defer sub.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			logger.Debug().Msg("Realtime client disconnected")
			return

		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Redact(ev, userID)); err != nil {
				logger.Debug().Err(err).Msg("Realtime write failed")
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
