// Package ws serves the broker's client surface: the websocket endpoint
// for live chat and the JSON endpoints for accounts, history and search.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chat-broker/domain"
	"chat-broker/runtime"
	"chat-broker/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type Server struct {
	log        *slog.Logger
	chat       services.IChatService
	auth       services.IAuthService
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewServer(log *slog.Logger, chat services.IChatService, auth services.IAuthService, bufferSize int) *Server {
	return &Server{
		log:  log,
		chat: chat,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is out of scope here; deployments front this
			// with their own CORS rules.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize: bufferSize,
	}
}

func (s *Server) Router() *mux.Router {
	h := &Handlers{log: s.log, auth: s.auth, chat: s.chat}

	r := mux.NewRouter()
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/profile", h.profile).Methods(http.MethodGet)
	r.HandleFunc("/update_profile", h.updateProfile).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{room}/messages", h.history).Methods(http.MethodGet)
	r.HandleFunc("/search", h.search).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleSocket)
	return r
}

// handleSocket owns one connection's lifetime: upgrade, sink allocation,
// optional token authentication, read loop, and disconnect cleanup. The
// cleanup path runs whatever the connection was doing when the socket
// dropped.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer socket.Close()

	sink := NewSink(s.bufferSize)
	conn := s.chat.Connect(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.writePump(ctx, socket, sink)

	if token := r.URL.Query().Get("token"); token != "" {
		if err := s.chat.Authenticate(conn, token); err != nil {
			// The connection stays open but unauthenticated; chat
			// operations will be dropped silently.
			s.log.Debug("token rejected", "connection", conn.ID, "error", err)
		}
	}

	s.readLoop(ctx, socket, conn)
	s.chat.Disconnect(context.Background(), conn)
}

func (s *Server) readLoop(ctx context.Context, socket *websocket.Conn, conn *runtime.Connection) {
	for {
		var frame inboundFrame
		if err := socket.ReadJSON(&frame); err != nil {
			s.log.Debug("read loop ended", "connection", conn.ID, "error", err)
			return
		}

		switch frame.Type {
		case frameAuth:
			if err := s.chat.Authenticate(conn, frame.Token); err != nil {
				s.log.Debug("token rejected", "connection", conn.ID, "error", err)
			}
		case frameJoin:
			_ = s.chat.Dispatch(ctx, conn, domain.JoinCommand{Room: frame.Room})
		case frameLeave:
			_ = s.chat.Dispatch(ctx, conn, domain.LeaveCommand{Room: frame.Room})
		case frameSend:
			if err := s.chat.Dispatch(ctx, conn, domain.SendMessageCommand{Room: frame.Room, Body: frame.Message}); err != nil {
				s.log.Error("send failed", "connection", conn.ID, "room", frame.Room, "error", err)
			}
		default:
			s.log.Debug("unknown frame type", "type", frame.Type)
		}
	}
}

func (s *Server) writePump(ctx context.Context, socket *websocket.Conn, sink *Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-sink.Events():
			frame, ok := toFrame(e)
			if !ok {
				continue
			}
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteJSON(frame); err != nil {
				s.log.Debug("write pump ended", "error", err)
				return
			}
		}
	}
}
