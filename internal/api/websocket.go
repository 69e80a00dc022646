package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

func accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil, nil, err
	}
	return c, r.Context(), nil
}

// StreamStatus sends the current status entries followed by every later
// change, one JSON text frame per change. Messages from the client are
// discarded; the stream ends when the client goes away.
func StreamStatus(s *Service, w http.ResponseWriter, r *http.Request) {
	c, ctx, err := accept(w, r)
	if err != nil {
		log.WithError(err).Error("Failed to accept status stream client")
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "closing")

	ctx = c.CloseRead(ctx)

	changes, unsubscribe := s.status.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Status stream client disconnected")
			return
		case change, ok := <-changes:
			if !ok {
				c.Close(websocket.StatusGoingAway, "agent stopping")
				return
			}
			b, err := json.Marshal(change)
			if err != nil {
				log.WithError(err).Error("Failed to encode status change")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, b)
			cancel()
			if err != nil {
				log.WithError(err).Debug("Status stream write failed")
				return
			}
		}
	}
}
