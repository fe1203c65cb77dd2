package server

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/engine"
)

// Websocket message types.
const (
	// Client to server.
	MsgMessage = "message"
	MsgFinish  = "finish"

	// Server to client.
	MsgStarted    = "conversation_started"
	MsgChunk      = "chunk"
	MsgReply      = "reply"
	MsgConfirmEnd = "confirm_end"
	MsgDiarySaved = "diary_saved"
	MsgError      = "error"
)

const (
	maxMessageSize = 64 << 10
	writeWait      = 10 * time.Second
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerMessage is a frame sent to the client.
type ServerMessage struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Content        string             `json:"content,omitempty"`
	Kind           core.Kind          `json:"kind,omitempty"`
	Theme          string             `json:"theme,omitempty"`
	Diary          *engine.SavedDiary `json:"diary,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// handleWS runs one conversation over a websocket. The query names the
// user and the conversation kind (daily_diary or theme).
func (s *Server) handleWS(c *gin.Context) {
	kind := core.Kind(c.DefaultQuery("kind", string(core.KindDaily)))
	conv, err := s.engine.NewConversation(c.Query("user_id"), kind)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied.
		log.WithError(err).Warn("[WS] upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	sess := &wsSession{
		conn:     conn,
		conv:     conv,
		phrases:  s.engine.Phrases(),
		logEntry: log.WithFields(log.Fields{"conversation_id": conv.ID, "user_id": c.Query("user_id")}),
	}
	sess.run(c.Request.Context())
}

type wsSession struct {
	conn     *websocket.Conn
	conv     *engine.Conversation
	phrases  engine.Phrases
	logEntry *log.Entry
}

func (s *wsSession) run(ctx context.Context) {
	s.logEntry.Info("[WS] conversation opened")
	defer s.logEntry.Info("[WS] conversation closed")

	opening, err := s.conv.Start(ctx)
	if err != nil {
		s.logEntry.WithError(err).Error("[WS] conversation start failed")
		s.send(ServerMessage{Type: MsgError, Content: s.phrases.Fallback, Error: err.Error()})
		return
	}
	s.send(ServerMessage{
		Type:           MsgStarted,
		ConversationID: s.conv.ID,
		Content:        opening,
		Kind:           s.conv.Kind(),
		Theme:          s.conv.Theme(),
	})

	s.conv.OnChunk(func(chunk string) {
		s.send(ServerMessage{Type: MsgChunk, Content: chunk})
	})

	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logEntry.WithError(err).Warn("[WS] read failed")
			}
			return
		}

		switch msg.Type {
		case MsgMessage:
			if done := s.handleMessage(ctx, msg.Content); done {
				s.close()
				return
			}
		case MsgFinish:
			if done := s.handleFinish(ctx); done {
				s.close()
				return
			}
		default:
			s.send(ServerMessage{Type: MsgError, Error: "unknown message type " + msg.Type})
		}
	}
}

// handleMessage runs one turn. done reports that the diary was written and
// the conversation is over.
func (s *wsSession) handleMessage(ctx context.Context, text string) (done bool) {
	reply, err := s.conv.Ask(ctx, text)
	switch {
	case err != nil && reply.Verdict == engine.Confirmed:
		// The user confirmed but the diary write failed; the client may
		// retry with a finish message.
		s.logEntry.WithError(err).Error("[WS] diary save failed")
		s.send(ServerMessage{Type: MsgReply, Content: reply.Text, Error: err.Error()})
		return false
	case errors.Is(err, core.ErrInvalidInput):
		s.send(ServerMessage{Type: MsgError, Error: err.Error()})
		return false
	case err != nil:
		s.logEntry.WithError(err).Error("[WS] reply failed")
		s.send(ServerMessage{Type: MsgError, Content: s.phrases.Fallback, Error: err.Error()})
		return false
	}

	switch reply.Verdict {
	case engine.Pending:
		s.send(ServerMessage{Type: MsgConfirmEnd, Content: reply.Text})
		return false
	case engine.Confirmed:
		s.send(ServerMessage{Type: MsgDiarySaved, Content: reply.Text, Diary: reply.Diary})
		return true
	default:
		s.send(ServerMessage{Type: MsgReply, Content: reply.Text})
		return false
	}
}

// handleFinish retries the diary write after a confirmed ending failed to
// save. Before the user has confirmed the ending it writes nothing.
func (s *wsSession) handleFinish(ctx context.Context) (done bool) {
	saved, err := s.conv.Finish(ctx)
	if errors.Is(err, core.ErrInvalidInput) {
		s.send(ServerMessage{Type: MsgError, Error: err.Error()})
		return false
	}
	if err != nil {
		s.logEntry.WithError(err).Error("[WS] diary save failed")
		s.send(ServerMessage{Type: MsgError, Content: s.phrases.DiaryFailed, Error: err.Error()})
		return false
	}
	s.send(ServerMessage{Type: MsgDiarySaved, Content: s.phrases.DiarySaved, Diary: saved})
	return true
}

func (s *wsSession) send(msg ServerMessage) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logEntry.WithError(err).Debug("[WS] write failed")
	}
}

func (s *wsSession) close() {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
