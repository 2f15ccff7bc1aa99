package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/models"
)

// Client message types
const (
	ClientSubscribe   = "subscribe"
	ClientJoinRoom    = "joinRoom"
	ClientUnsubscribe = "unsubscribe"
	ClientLeaveRoom   = "leaveRoom"
	ClientFlip        = "flip"
	ClientGameEvent   = "game:event"
)

// Reply types sent only to the requesting connection
const (
	ReplyAck   = "ack"
	ReplyError = "error"
)

// clientTimeout bounds requests a client makes against a room.
const clientTimeout = 5 * time.Second

// ClientMessage is a request read from a WebSocket connection
type ClientMessage struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	TeamID int             `json:"teamId,omitempty"`
	CardID int             `json:"cardId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Reply answers a ClientMessage
type Reply struct {
	Type   string      `json:"type"`
	Action string      `json:"action,omitempty"`
	RoomID string      `json:"roomId,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   models.Code `json:"code,omitempty"`
}

// handleClientMessage processes messages from the client
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(Reply{Type: ReplyError, Error: "malformed message", Code: models.CodeInvalidInput})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	cm := c.Manager
	switch msg.Type {
	case ClientSubscribe, ClientJoinRoom:
		roomID, err := cm.directory.Resolve(msg.RoomID)
		if err != nil {
			c.replyErr(msg.Type, msg.RoomID, err)
			return
		}
		cm.Subscribe(c, roomID)
		c.reply(Reply{Type: ReplyAck, Action: msg.Type, RoomID: roomID})

	case ClientUnsubscribe, ClientLeaveRoom:
		roomID, err := cm.directory.Resolve(msg.RoomID)
		if err != nil {
			// the room may be gone already
			roomID = msg.RoomID
		}
		cm.Unsubscribe(c, roomID)
		c.reply(Reply{Type: ReplyAck, Action: msg.Type, RoomID: roomID})

	case ClientFlip:
		if err := cm.directory.Flip(ctx, msg.RoomID, msg.TeamID, msg.CardID); err != nil {
			c.replyErr(msg.Type, msg.RoomID, err)
			return
		}
		c.reply(Reply{Type: ReplyAck, Action: msg.Type, RoomID: msg.RoomID})

	case ClientGameEvent:
		if err := cm.directory.Relay(ctx, msg.RoomID, msg.Data); err != nil {
			c.replyErr(msg.Type, msg.RoomID, err)
			return
		}
		c.reply(Reply{Type: ReplyAck, Action: msg.Type, RoomID: msg.RoomID})

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("unknown client message")
		c.reply(Reply{Type: ReplyError, Action: msg.Type, Error: "unknown message type", Code: models.CodeInvalidInput})
	}
}

func (c *Connection) replyErr(action, roomID string, err error) {
	code := models.CodeOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Str("connection_id", c.ID).Str("action", action).Msg("client request timed out")
	}
	c.reply(Reply{Type: ReplyError, Action: action, RoomID: roomID, Error: err.Error(), Code: code})
}

func (c *Connection) reply(r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply")
		return
	}
	if !c.Manager.sendTo(c, data) {
		log.Debug().Str("connection_id", c.ID).Msg("reply dropped")
	}
}
