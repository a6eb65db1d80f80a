package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/dshills/ragflow/rag"
)

// handleChatStream sends the run's stream events as server-sent events, one
// JSON object per data line.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flush := func() error {
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}
	if err := flush(); err != nil {
		return
	}

	err := s.runner.Stream(r.Context(), req, func(ev rag.StreamEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return flush()
	})
	if err != nil {
		s.logger.Warn("stream ended with error", zap.Error(err))
	}
}

// handleChatWebSocket answers chat requests sent as JSON text messages, one
// at a time, with the same events as the SSE endpoint.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent not loaded. Please check server logs.")
		return
	}
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxRequestBytes)

	ctx := r.Context()
	for {
		req, err := s.readChat(ctx, conn)
		if err != nil {
			var bad badMessage
			if errors.As(err, &bad) {
				if err := wsjson.Write(ctx, conn, rag.StreamEvent{Type: rag.EventError, Message: bad.Error()}); err != nil {
					return
				}
				continue
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				_ = conn.Close(websocket.StatusNormalClosure, "")
			default:
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		err = s.runner.Stream(ctx, req, func(ev rag.StreamEvent) error {
			return wsjson.Write(ctx, conn, ev)
		})
		if err != nil {
			s.logger.Warn("websocket stream ended with error", zap.Error(err))
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// badMessage is a client message that could not be used as a request.
type badMessage struct{ msg string }

func (b badMessage) Error() string { return b.msg }

func (s *Server) readChat(ctx context.Context, conn *websocket.Conn) (rag.Request, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return rag.Request{}, err
	}
	if typ != websocket.MessageText {
		return rag.Request{}, badMessage{"expected a text message"}
	}
	var body ChatRequest
	if err := json.Unmarshal(data, &body); err != nil {
		return rag.Request{}, badMessage{"invalid request: " + err.Error()}
	}
	req := body.toRAG()
	if err := req.Validate(); err != nil {
		return rag.Request{}, badMessage{err.Error()}
	}
	return req, nil
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range s.origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}
