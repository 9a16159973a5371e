// Package gateway - events.go streams live request events over WebSocket.
//
// DESIGN: GET /events upgrades to a WebSocket and relays every request
// event published on the in-process hub. Subscribers that fall behind miss
// events rather than slowing request handling. Loopback only, like the
// other operational surfaces.
package gateway

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
)

// handleEvents serves the live request-event feed.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The dashboard is served from the same host; no cross-origin use.
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := g.events.Subscribe()
	defer g.events.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}
