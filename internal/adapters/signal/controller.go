package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Subjective/watch-together-sub000/internal/app"
	"github.com/Subjective/watch-together-sub000/internal/config"
	"github.com/Subjective/watch-together-sub000/internal/core"
	"github.com/Subjective/watch-together-sub000/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller upgrades sockets and feeds decoded envelopes into the room
// coordinators.
type Controller struct {
	rooms *app.RoomManager
	cfg   *config.Config
}

func NewController(rooms *app.RoomManager, cfg *config.Config) *Controller {
	return &Controller{rooms: rooms, cfg: cfg}
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("ws upgrade failed")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	cl := &client{ctl: ctl, conn: newWSConn(ws)}
	ctx, cancel := context.WithCancel(ctx)
	go cl.writePump(ctx)
	go cl.readPump(ctx, cancel)
}

// client tracks which coordinator a socket is bound to. The binding is set by
// the first create-room/join-room and routes every later frame, including the
// disconnect funnel.
type client struct {
	ctl  *Controller
	conn *wsConn

	mu     sync.Mutex
	coord  *core.Coordinator
	userID string
}

// bind points the socket at its coordinator once a create/join has actually
// registered it there. A previous binding to another room or user id is
// funneled a disconnect so no membership is left behind.
func (cl *client) bind(coord *core.Coordinator, userID string) {
	cl.mu.Lock()
	prev, prevID := cl.coord, cl.userID
	cl.coord = coord
	cl.userID = userID
	cl.mu.Unlock()
	if prev != nil && (prev != coord || prevID != userID) {
		prev.OnDisconnect(prevID, cl.conn)
	}
}

func (cl *client) bound() (*core.Coordinator, string, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.coord, cl.userID, cl.coord != nil
}

func (cl *client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		if coord, userID, ok := cl.bound(); ok {
			coord.OnDisconnect(userID, cl.conn)
		}
		cl.conn.CloseWithCode(websocket.CloseNormalClosure, "")
		cancel()
	}()

	_ = cl.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.conn.SetPongHandler(func(string) error {
		return cl.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := cl.conn.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.signal").Msg("read loop ended")
			return
		}
		cl.dispatch(data)
	}
}

func (cl *client) dispatch(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = cl.conn.Send(protocol.Event{Type: protocol.EventError, Error: "malformed message", Details: "validation"})
		return
	}

	switch msg.Type {
	case protocol.TypeCreateRoom, protocol.TypeJoinRoom:
		if msg.RoomID == "" {
			_ = cl.conn.Send(protocol.Event{Type: protocol.EventError, Error: "roomId required", Details: "validation"})
			return
		}
		coord := cl.ctl.rooms.GetOrCreate(msg.RoomID)
		coord.HandleMessage(cl.conn, msg)
		// Bind only when the coordinator registered this socket: a rejected
		// create/join must not disturb an existing binding, and its later
		// disconnect must not be attributed to the claimed user id.
		if coord.ConnectedAs(msg.UserID, cl.conn) {
			cl.bind(coord, msg.UserID)
		} else {
			cl.ctl.rooms.Release(msg.RoomID)
		}
	default:
		coord, userID, ok := cl.bound()
		if !ok {
			_ = cl.conn.Send(protocol.Event{Type: protocol.EventError, Error: "not in a room", Details: "validation"})
			return
		}
		if msg.UserID == "" {
			msg.UserID = userID
		}
		coord.HandleMessage(cl.conn, msg)
	}
}

func (cl *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(cl.ctl.cfg.PingPeriod)
	defer ticker.Stop()
	defer func() { _ = cl.conn.conn.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-cl.conn.send:
			if err := cl.conn.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if f.closeCode != 0 {
				msg := websocket.FormatCloseMessage(f.closeCode, f.reason)
				_ = cl.conn.conn.WriteMessage(websocket.CloseMessage, msg)
				_ = cl.conn.conn.Close()
				return
			}
			if err := cl.conn.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				log.Debug().Err(err).Str("module", "adapters.signal").Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := cl.conn.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := cl.conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
