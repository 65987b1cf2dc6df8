// Package gateway exposes the chat engine over WebSocket with a JSON frame protocol.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"support-chat/auth"
	"support-chat/domain"
	"support-chat/errors"
	"support-chat/observability"
	"support-chat/services"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

var (
	ErrBadFrame    = fmt.Errorf("malformed frame")
	ErrRateLimited = fmt.Errorf("too many frames")
	ErrUnknownType = fmt.Errorf("unknown frame type")
)

// maxDecodeFailures consecutive unreadable frames close the connection.
const maxDecodeFailures = 3

type Options struct {
	AllowedOrigins  []string
	FramesPerSecond float64
	FrameBurst      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxFrameSize    int64
	// Inspect is mounted on /debug/inspect when non-nil.
	Inspect         http.Handler
}

type Server struct {
	log        *slog.Logger
	service    services.IChatService
	issuer     *auth.TokenIssuer
	directory  *auth.Directory
	monitoring *observability.MonitoringManager
	options    Options
	upgrader   websocket.Upgrader
}

func NewServer(
	log *slog.Logger,
	service services.IChatService,
	issuer *auth.TokenIssuer,
	directory *auth.Directory,
	monitoring *observability.MonitoringManager,
	options Options,
) *Server {
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = 10 * time.Second
	}
	if options.PingInterval <= 0 {
		options.PingInterval = 30 * time.Second
	}
	if options.MaxFrameSize <= 0 {
		options.MaxFrameSize = 64 * 1024
	}
	if options.FramesPerSecond <= 0 {
		options.FramesPerSecond = 20
	}
	if options.FrameBurst <= 0 {
		options.FrameBurst = int(options.FramesPerSecond) * 2
	}
	return &Server{
		log:        log,
		service:    service,
		issuer:     issuer,
		directory:  directory,
		monitoring: monitoring,
		options:    options,
		upgrader:   makeUpgrader(options.AllowedOrigins),
	}
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// Handler builds the HTTP routes: the authenticated /ws endpoint plus health, stats and metrics.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())
	if s.options.Inspect != nil {
		router.Handle("/debug/inspect", s.options.Inspect)
	}

	authenticated := auth.Middleware(s.issuer, s.directory)
	router.Handle("/ws", authenticated(http.HandlerFunc(s.handleWS)))
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.monitoring == nil {
		writeJSON(w, observability.MonitoringStats{})
		return
	}
	writeJSON(w, s.monitoring.GetLatest())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}
	handle := newWSHandle(conn, s.options.WriteTimeout)

	connID, err := s.service.Connect(user.ID, handle)
	if err != nil {
		s.log.Info("Connection refused", "user_id", user.ID, "error", err)
		_ = s.reply(r.Context(), handle, Frame{}, nil, err)
		_ = handle.Close()
		return
	}
	s.log.Info("Client connected", "user_id", user.ID, "connection_id", connID)
	defer func() {
		s.service.Disconnect(connID)
		s.log.Info("Client disconnected", "user_id", user.ID, "connection_id", connID)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.keepalive(ctx, handle, connID)

	s.readLoop(ctx, conn, handle, user, connID)
}

// keepalive pings the client until ctx ends or a ping fails.
func (s *Server) keepalive(ctx context.Context, handle *wsHandle, connID domain.ConnectionID) {
	ticker := time.NewTicker(s.options.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := handle.ping(); err != nil {
				s.log.Debug("ping failed", "connection_id", connID, "error", err)
				_ = handle.Close()
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, handle *wsHandle,
	user domain.User, connID domain.ConnectionID) {
	pongWait := 2 * s.options.PingInterval
	conn.SetReadLimit(s.options.MaxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(s.options.FramesPerSecond), s.options.FrameBurst)
	failures := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("client read error", "connection_id", connID, "error", err)
			return
		}
		// Any message resets the read deadline.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := decodeFrame(raw, &frame); err != nil {
			failures++
			_ = s.reply(ctx, handle, frame, nil, err)
			if failures >= maxDecodeFailures {
				s.log.Warn("closing connection after repeated malformed frames", "connection_id", connID)
				return
			}
			continue
		}
		failures = 0

		if !limiter.Allow() {
			_ = s.reply(ctx, handle, frame, nil, ErrRateLimited)
			continue
		}

		result, err := s.dispatch(ctx, user, connID, frame)
		if err := s.reply(ctx, handle, frame, result, err); err != nil {
			s.log.Debug("reply failed", "connection_id", connID, "error", err)
			return
		}
	}
}

func decodeFrame(raw []byte, frame *Frame) error {
	if err := json.Unmarshal(raw, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if err := validate.Struct(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return nil
}

// dispatch runs one inbound frame against the engine and returns the reply payload.
func (s *Server) dispatch(ctx context.Context, user domain.User, connID domain.ConnectionID, frame Frame) (any, error) {
	switch frame.Type {
	case SessionOpen:
		session, err := s.service.OpenSession(user.ID)
		if err != nil {
			return nil, err
		}
		return toSessionView(session), nil

	case SessionAssign:
		p, err := decodePayload[SessionRef](frame)
		if err != nil {
			return nil, err
		}
		session, err := s.service.AssignAgent(domain.ConversationID(p.SessionID), user.ID)
		if err != nil {
			return nil, err
		}
		return toSessionView(session), nil

	case SessionClose:
		p, err := decodePayload[SessionClosePayload](frame)
		if err != nil {
			return nil, err
		}
		session, err := s.service.CloseSession(user.ID, domain.ConversationID(p.SessionID), p.Reason)
		if err != nil {
			return nil, err
		}
		return toSessionView(session), nil

	case SessionList:
		views := make([]SessionView, 0)
		for _, session := range s.service.Sessions(user.ID) {
			views = append(views, toSessionView(session))
		}
		return views, nil

	case RoomCreate:
		return toRoomView(s.service.CreateRoom(user.ID)), nil

	case RoomJoin:
		p, err := decodePayload[RoomRef](frame)
		if err != nil {
			return nil, err
		}
		room, err := s.service.JoinRoom(domain.ConversationID(p.RoomID), user.ID)
		if err != nil {
			return nil, err
		}
		return toRoomView(room), nil

	case RoomLeave:
		p, err := decodePayload[RoomRef](frame)
		if err != nil {
			return nil, err
		}
		room, err := s.service.LeaveRoom(domain.ConversationID(p.RoomID), user.ID)
		if err != nil {
			return nil, err
		}
		return toRoomView(room), nil

	case MessageSend:
		p, err := decodePayload[MessageSendPayload](frame)
		if err != nil {
			return nil, err
		}
		msg, err := s.service.PostMessage(ctx, connID, domain.ConversationID(p.ConversationID), p.Payload)
		if err != nil {
			return nil, err
		}
		return toMessageView(msg), nil

	case MessageAck:
		p, err := decodePayload[MessageAckPayload](frame)
		if err != nil {
			return nil, err
		}
		if err := s.service.Ack(connID, uuid.MustParse(p.MessageID)); err != nil {
			return nil, err
		}
		return map[string]string{"message_id": p.MessageID}, nil

	case Replay:
		p, err := decodePayload[ReplayPayload](frame)
		if err != nil {
			return nil, err
		}
		queued, err := s.service.Replay(connID, domain.ConversationID(p.ConversationID), p.AfterSeq)
		if err != nil {
			return nil, err
		}
		return ReplayView{ConversationID: p.ConversationID, Queued: queued}, nil

	case History:
		p, err := decodePayload[HistoryPayload](frame)
		if err != nil {
			return nil, err
		}
		messages, err := s.service.History(connID, domain.ConversationID(p.ConversationID), p.AfterSeq)
		if err != nil {
			return nil, err
		}
		views := make([]MessageView, 0, len(messages))
		for _, msg := range messages {
			views = append(views, toMessageView(msg))
		}
		return HistoryView{ConversationID: p.ConversationID, Messages: views}, nil

	case PresenceGet:
		p, err := decodePayload[PresencePayload](frame)
		if err != nil {
			return nil, err
		}
		status := s.service.Presence(domain.UserID(p.UserID))
		return PresenceView{UserID: p.UserID, Status: string(status)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, frame.Type)
	}
}

// reply writes either the result or an error frame correlated by request id.
func (s *Server) reply(ctx context.Context, handle *wsHandle, req Frame, result any, err error) error {
	out := Frame{Type: TypeReply, RequestID: req.RequestID}
	if err != nil {
		out.Type = TypeError
		result = ErrorPayload{Code: codeFor(err), Message: err.Error()}
	}
	payload, mErr := json.Marshal(result)
	if mErr != nil {
		return mErr
	}
	out.Payload = payload

	ctx, cancel := context.WithTimeout(ctx, s.options.WriteTimeout)
	defer cancel()
	return handle.write(ctx, out)
}

func codeFor(err error) errors.Code {
	switch {
	case stderrors.Is(err, ErrBadFrame), stderrors.Is(err, ErrUnknownType):
		return errors.CodeInvalidArgument
	case stderrors.Is(err, ErrRateLimited):
		return errors.CodeRateLimited
	default:
		return errors.MapToCode(err)
	}
}
