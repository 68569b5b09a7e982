package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	joinTimeout      = 10 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// session is one connected player. Only the writer goroutine writes to conn
// after the handshake.
type session struct {
	id    entity.ID
	codec protocol.Codec
	out   chan []byte
	// ctrl carries frames produced by the transport itself (rejections), so
	// the world's out queue is never written from here.
	ctrl chan []byte

	kickOnce sync.Once
	kicked   chan string
}

func (ss *session) kick(code string) {
	ss.kickOnce.Do(func() { ss.kicked <- code })
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ss := s.handshake(r.Context(), conn)
		if ss == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go s.writeLoop(ctx, cancel, conn, ss)
		s.readLoop(ctx, conn, ss)
		cancel()

		// Cleanup.
		s.world.Inbox().Leave(ss.id)
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, ss *session) {
	defer cancel()
	frameType := websocket.TextMessage
	if ss.codec.Binary() {
		frameType = websocket.BinaryMessage
	}
	write := func(b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(frameType, b) == nil
	}
	for {
		select {
		case <-ctx.Done():
			return
		case code := <-ss.kicked:
			if b, err := ss.codec.Marshal(disconnect(code, "client fell behind")); err == nil {
				write(b)
			}
			closeWith(conn, websocket.CloseTryAgainLater, code)
			_ = conn.Close()
			return
		case b := <-ss.ctrl:
			if !write(b) {
				return
			}
		case b, ok := <-ss.out:
			if !ok {
				return
			}
			if !write(b) {
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, ss *session) {
	tune := s.world.Tuning()
	limiter := rate.NewLimiter(rate.Limit(tune.RateLimits.MessagesPerSecond), tune.RateLimits.Burst)
	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !limiter.Allow() {
			s.rejectFrame(ss, "", protocol.ErrRateLimit, "too many messages")
			continue
		}
		act, err := protocol.DecodeAction(ss.codec, msg)
		if err != nil {
			s.rejectFrame(ss, "", protocol.ErrProtoBadRequest, err.Error())
			continue
		}
		err = s.world.Inbox().Push(world.ActionEnvelope{Player: ss.id, Act: act})
		if errors.Is(err, world.ErrInboxFull) {
			s.rejectFrame(ss, "", protocol.ErrWorldBusy, "server is overloaded")
		}
	}
}

// rejectFrame queues a transport-level ACK. It drops the frame if the control
// queue is full.
func (s *Server) rejectFrame(ss *session, ackFor, code, message string) {
	b, err := ss.codec.Marshal(protocol.AckMsg{
		Type:       protocol.TypeAck,
		AckFor:     ackFor,
		Accepted:   false,
		Code:       code,
		Message:    message,
		ServerTick: s.world.CurrentTick(),
	})
	if err != nil {
		return
	}
	select {
	case ss.ctrl <- b:
	default:
		s.log.Printf("player=%d: dropped %s ack", ss.id, code)
	}
}

// handshake reads HELLO, joins the world and writes WELCOME, all as JSON text
// frames. It returns nil after sending DISCONNECT if the client is refused.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		refuse(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		refuse(conn, protocol.ErrProtoBadRequest, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		refuse(conn, protocol.ErrProtoVersion, "server speaks protocol "+protocol.Version)
		return nil
	}
	codec, ok := protocol.CodecFor(hello.Encoding)
	if !ok {
		refuse(conn, protocol.ErrProtoBadRequest, "unsupported encoding "+hello.Encoding)
		return nil
	}

	tune := s.world.Tuning()
	ss := &session{
		codec:  codec,
		out:    make(chan []byte, tune.ClientQueueSize),
		ctrl:   make(chan []byte, 16),
		kicked: make(chan string, 1),
	}
	respCh := make(chan world.JoinResponse, 1)
	s.world.Inbox().Join(world.JoinRequest{
		Name:      hello.Name,
		SessionID: uuid.NewString(),
		Codec:     codec,
		Out:       ss.out,
		Kick:      ss.kick,
		Resp:      respCh,
	})

	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(joinTimeout):
		go s.leaveIfAdmitted(respCh)
		refuse(conn, protocol.ErrWorldBusy, "join timed out")
		return nil
	case <-ctx.Done():
		go s.leaveIfAdmitted(respCh)
		return nil
	}
	if resp.Code != "" {
		refuse(conn, resp.Code, resp.Reason)
		return nil
	}

	// WELCOME goes out before the writer starts, so everything the world has
	// already queued follows it.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Inbox().Leave(entity.ID(resp.Welcome.PlayerID))
		return nil
	}
	ss.id = entity.ID(resp.Welcome.PlayerID)
	s.log.Printf("session %s: player=%d name=%q encoding=%s", resp.Welcome.SessionID, ss.id, hello.Name, codec.Name())
	return ss
}

// leaveIfAdmitted undoes a join the connection gave up waiting for.
func (s *Server) leaveIfAdmitted(respCh <-chan world.JoinResponse) {
	if late := <-respCh; late.Code == "" {
		s.world.Inbox().Leave(entity.ID(late.Welcome.PlayerID))
	}
}

func disconnect(code, reason string) protocol.DisconnectMsg {
	return protocol.DisconnectMsg{
		Type:            protocol.TypeDisconnect,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Reason:          reason,
	}
}

// refuse sends DISCONNECT then a close frame.
func refuse(conn *websocket.Conn, code, reason string) {
	_ = writeJSON(conn, disconnect(code, reason))
	closeWith(conn, websocket.ClosePolicyViolation, code)
}

func closeWith(conn *websocket.Conn, status int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(status, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
