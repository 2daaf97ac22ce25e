package testserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wrale/device-auth/internal/graphql"
)

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{graphql.Subprotocol},
	})
	if err != nil {
		return
	}
	defer c.CloseNow()

	s.mu.Lock()
	s.stats.WSOpened++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stats.WSClosed++
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var hello graphql.Message
	if err := wsjson.Read(ctx, c, &hello); err != nil || hello.Type != graphql.MsgConnectionInit {
		c.Close(websocket.StatusCode(4400), "expected connection_init")
		return
	}
	if err := wsjson.Write(ctx, c, graphql.Message{Type: graphql.MsgConnectionAck}); err != nil {
		return
	}

	msgs := make(chan graphql.Message)
	go func() {
		defer close(msgs)
		for {
			var m graphql.Message
			if err := wsjson.Read(ctx, c, &m); err != nil {
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		frames <-chan frame
		subID  string
	)
	for {
		select {
		case <-ctx.Done():
			return

		case m, ok := <-msgs:
			if !ok {
				return
			}
			switch m.Type {
			case graphql.MsgPing:
				if err := wsjson.Write(ctx, c, graphql.Message{Type: graphql.MsgPong}); err != nil {
					return
				}
			case graphql.MsgSubscribe:
				var req graphql.Request
				if err := json.Unmarshal(m.Payload, &req); err != nil {
					c.Close(websocket.StatusCode(4400), "invalid subscribe payload")
					return
				}
				requestID, _ := req.Variables["requestId"].(string)

				s.mu.Lock()
				s.stats.Subscribes++
				frames = s.topicLocked(requestID).ch
				s.mu.Unlock()
				subID = m.ID
			case graphql.MsgComplete:
				if m.ID == subID {
					frames = nil
				}
			}

		case f, ok := <-frames:
			if !ok {
				frames = nil
				if err := wsjson.Write(ctx, c, graphql.Message{ID: subID, Type: graphql.MsgComplete}); err != nil {
					return
				}
				continue
			}
			if err := wsjson.Write(ctx, c, f.message(subID)); err != nil {
				return
			}
		}
	}
}

func (f frame) message(id string) graphql.Message {
	if len(f.errs) > 0 {
		payload, _ := json.Marshal(f.errs)
		return graphql.Message{ID: id, Type: graphql.MsgError, Payload: payload}
	}

	data, _ := json.Marshal(f.data)
	payload, _ := json.Marshal(graphql.Response{Data: data})
	return graphql.Message{ID: id, Type: graphql.MsgNext, Payload: payload}
}
