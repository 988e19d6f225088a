package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

const writeWait = 5 * time.Second

// checkOrigin restricts the WebSocket upgrade to the same CORS allow-list
// the REST surface uses (spec §4.7).
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // same-origin browser requests often omit Origin
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// handleStream upgrades to the duplex channel of spec §4.7/§6: one reader
// goroutine (to observe a client-initiated close) and the invoking
// goroutine acting as writer, draining the per-session Subscriber until
// either side closes (spec §5 concurrency model: one reader + one writer
// task per duplex connection).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	raw := r.URL.Query().Get("token")
	if _, err := s.authority.Verify(raw, token.VerifyOptions{
		Audience: token.AudienceWST, SessionID: sess.ID, CurrentGeneration: sess.TokenGeneration,
	}); err != nil {
		writeError(w, err)
		return
	}

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			since = n
		}
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithSession(sess.ID).WithField("err", err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(sess.ID, since)
	defer s.bus.Unsubscribe(sess.ID, sub)

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case reason, ok := <-sub.Closed():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(writeWait))
			return
		case <-clientClosed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
