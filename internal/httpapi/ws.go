package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/summitchat/internal/auth"
	"github.com/ent0n29/summitchat/internal/chat"
	"github.com/ent0n29/summitchat/internal/protocol"
	"github.com/ent0n29/summitchat/internal/reliability"
	"github.com/ent0n29/summitchat/internal/transcript"
)

// handleChatWS serves the websocket variant of /api/chat. Requests on one
// connection run one at a time; a client_control cancel stops the active one.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &chatConn{
		srv:     s,
		conn:    conn,
		session: sess,
	}

	inbound := make(chan any, 16)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(inbound)
		c.readLoop(ctx, inbound)
	}()

	// A failed write means the peer is gone; closing the socket unblocks the reader.
	for msg := range inbound {
		var err error
		switch m := msg.(type) {
		case protocol.ErrorEvent:
			err = c.write(m.Type, m)
		case protocol.ChatRequest:
			err = c.runTurn(ctx, m)
		}
		if err != nil {
			cancel()
			_ = conn.Close()
		}
	}
	cancel()
	<-readerDone
}

type chatConn struct {
	srv     *Server
	conn    *websocket.Conn
	session *auth.Session

	mu     sync.Mutex
	active string
	stop   context.CancelFunc
}

// readLoop owns every read on the connection. Cancels are applied directly;
// everything that needs a reply is queued for the writer.
func (c *chatConn) readLoop(ctx context.Context, inbound chan<- any) {
	c.conn.SetReadLimit(2 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.cancelActive("")
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			c.srv.metrics.ObserveWSMessage("inbound", "invalid")
			select {
			case inbound <- protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Status: http.StatusBadRequest,
				Detail: err.Error(),
			}:
			case <-ctx.Done():
				return
			}
			continue
		}

		switch m := parsed.(type) {
		case protocol.ClientControl:
			c.srv.metrics.ObserveWSMessage("inbound", string(m.Type))
			c.cancelActive(m.RequestID)
		case protocol.ChatRequest:
			c.srv.metrics.ObserveWSMessage("inbound", string(m.Type))
			select {
			case inbound <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}

// cancelActive stops the running turn. An empty id matches any turn.
func (c *chatConn) cancelActive(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	if requestID != "" && requestID != c.active {
		return
	}
	c.stop()
}

func (c *chatConn) setActive(requestID string, stop context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = requestID
	c.stop = stop
}

// runTurn streams one chat_request. Only write failures are returned; they
// mean the connection is gone.
func (c *chatConn) runTurn(ctx context.Context, req protocol.ChatRequest) error {
	turnCtx, stop := context.WithCancel(ctx)
	c.setActive(req.RequestID, stop)
	defer func() {
		c.setActive("", nil)
		stop()
	}()

	turn, err := c.srv.chat.Start(turnCtx, c.session, chat.Request{
		ID:           req.ID,
		Messages:     req.Messages,
		PreviewToken: req.PreviewToken,
	})
	if err != nil {
		ev := protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: req.RequestID,
			Detail:    err.Error(),
		}
		switch {
		case errors.Is(err, chat.ErrInvalidRequest):
			ev.Code = "invalid_request"
			ev.Status = http.StatusBadRequest
		case errors.Is(err, transcript.ErrChatNotOwned):
			ev.Code = "chat_not_found"
			ev.Status = http.StatusNotFound
			ev.Detail = "chat not found"
		default:
			cl := reliability.Classify(err)
			ev.Code, ev.Status, ev.Retryable = cl.Code, cl.Status, cl.Retryable
		}
		return c.write(ev.Type, ev)
	}
	defer turn.Close()

	if err := c.write(protocol.TypeChatStarted, protocol.ChatStarted{
		Type:      protocol.TypeChatStarted,
		RequestID: req.RequestID,
		ChatID:    turn.ChatID,
	}); err != nil {
		return err
	}

	var writeErr error
	pumpErr := turn.Pump(func(chunk string) error {
		writeErr = c.write(protocol.TypeTextDelta, protocol.TextDelta{
			Type:      protocol.TypeTextDelta,
			RequestID: req.RequestID,
			ChatID:    turn.ChatID,
			TextDelta: chunk,
		})
		return writeErr
	})
	if writeErr != nil {
		return writeErr
	}

	reason := "completed"
	switch {
	case pumpErr == nil:
	case turnCtx.Err() != nil:
		reason = "cancelled"
	default:
		reason = "failed"
		cl := reliability.Classify(pumpErr)
		if err := c.write(protocol.TypeErrorEvent, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: req.RequestID,
			Code:      cl.Code,
			Status:    cl.Status,
			Retryable: cl.Retryable,
			Detail:    pumpErr.Error(),
		}); err != nil {
			return err
		}
	}
	return c.write(protocol.TypeChatCompleted, protocol.ChatCompleted{
		Type:      protocol.TypeChatCompleted,
		RequestID: req.RequestID,
		ChatID:    turn.ChatID,
		Reason:    reason,
	})
}

// write is only called from the connection's handler goroutine.
func (c *chatConn) write(t protocol.MessageType, msg any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.srv.metrics.ObserveWSMessage("outbound", "write_error")
		return err
	}
	c.srv.metrics.ObserveWSMessage("outbound", string(t))
	return nil
}
