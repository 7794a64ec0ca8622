package core

import (
	"github.com/rs/zerolog/log"
)

// Router fans frames out to the room's live connections. It never inspects
// relayed payloads; they belong to the WebRTC layer on the clients.
type Router struct {
	reg *Registry
}

func NewRouter(reg *Registry) *Router {
	return &Router{reg: reg}
}

// Broadcast sends to every live connection except the excluded user id
// (pass "" to reach everyone). Slow consumers are skipped, not waited on.
func (rt *Router) Broadcast(except string, v any) {
	rt.reg.mu.RLock()
	defer rt.reg.mu.RUnlock()
	sent, dropped := 0, 0
	for id, e := range rt.reg.conns {
		if id == except {
			continue
		}
		if err := e.Conn.Send(v); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "core.router").Int("sent_to", sent).Int("dropped", dropped).Msg("broadcast result")
}

// Unicast delivers to a single user; ErrTargetNotFound when no live
// connection exists for the id.
func (rt *Router) Unicast(userID string, v any) error {
	conn, ok := rt.reg.Get(userID)
	if !ok {
		return ErrTargetNotFound
	}
	return conn.Send(v)
}
