// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package sync runs the per-connection session state machine: rate check,
// authorization, hydration, then frame service until disconnect or revoke.
package sync

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hyperclast/pagesync/collabapi/crdt"
	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/perm"
	"github.com/hyperclast/pagesync/collabapi/ratelimit"
	"github.com/hyperclast/pagesync/collabapi/room"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/ip"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	outboundQueueSize = 256
	controlQueueSize  = 32
)

// Workspace is the slice of workspace storage the session needs to resolve
// a page. Both methods return nil, nil for unknown or soft-deleted records.
type Workspace interface {
	PageByExternalID(ctx context.Context, externalID string) (*api.Page, error)
	ProjectByID(ctx context.Context, projectID int64) (*api.Project, error)
}

// UserAuthenticator resolves the user behind an upgrade request. A missing
// or invalid credential yields nil, nil: anonymous connections proceed to
// the rate check and fail authorization later, which keeps the limiter in
// front of credential probing.
type UserAuthenticator interface {
	UserFromRequest(req *http.Request) (*api.User, error)
}

// Server holds the shared collaborators for every session on this worker.
type Server struct {
	processCtx context.Context
	cfg        *config.CollabAPI
	hub        *hub.Hub
	rooms      *room.Manager
	resolver   *perm.Resolver
	limiter    *ratelimit.ConnectionLimiter
	workspace  Workspace
	auth       UserAuthenticator
}

func NewServer(
	processCtx context.Context,
	cfg *config.CollabAPI,
	h *hub.Hub,
	rooms *room.Manager,
	resolver *perm.Resolver,
	limiter *ratelimit.ConnectionLimiter,
	workspace Workspace,
	auth UserAuthenticator,
) *Server {
	return &Server{
		processCtx: processCtx,
		cfg:        cfg,
		hub:        h,
		rooms:      rooms,
		resolver:   resolver,
		limiter:    limiter,
		workspace:  workspace,
		auth:       auth,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Token auth, not cookie auth, protects the endpoint; origin checks
	// would only break non-browser clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandlePage upgrades the request and runs the session to completion.
// Failures after the upgrade are reported as WebSocket close codes, not
// HTTP statuses: the client already holds a socket.
func (s *Server) HandlePage(w http.ResponseWriter, req *http.Request, pageExternalID string) {
	user, err := s.auth.UserFromRequest(req)
	if err != nil {
		// Invalid credentials are anonymous, not an error.
		user = nil
	}
	clientIP := ip.ClientIP(req)

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logrus.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		user:   user,
		out:    make(chan outbound, outboundQueueSize),
		ctrl:   make(chan types.ControlMessage, controlQueueSize),
		done:   make(chan struct{}),
	}
	if s.cfg.WriteRate.OpsPerSecond > 0 {
		sess.writeLimiter = rate.NewLimiter(
			rate.Limit(s.cfg.WriteRate.OpsPerSecond), int(s.cfg.WriteRate.Burst),
		)
	}
	sess.run(s.processCtx, pageExternalID, clientIP)
}

// outbound is one queued delivery. Binary frames go out as binary
// messages, control messages as JSON text frames. A nonzero closeCode
// closes the session once the write is on the wire, which keeps the final
// control frame ordered ahead of the close frame.
type outbound struct {
	frame   []byte
	control *types.ControlMessage

	closeCode   int
	closeReason string
}

type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	user   *api.User

	page    *api.Page
	project *api.Project
	room    *room.Room

	mu    sync.Mutex
	level types.AccessLevel

	writeLimiter *rate.Limiter

	out  chan outbound
	ctrl chan types.ControlMessage

	closeOnce sync.Once
	done      chan struct{}
}

// ID implements hub.Session.
func (s *session) ID() string { return s.id }

// QueueFrame implements hub.Session. Never blocks; false means the queue is
// full and the hub will kick us.
func (s *session) QueueFrame(frame []byte) bool {
	select {
	case s.out <- outbound{frame: frame}:
		return true
	default:
		return false
	}
}

// QueueControl implements hub.Session. Control events are handled off the
// hub's goroutine because re-evaluating access hits the database.
func (s *session) QueueControl(msg types.ControlMessage) bool {
	select {
	case s.ctrl <- msg:
		return true
	default:
		return false
	}
}

// Kick implements hub.Session.
func (s *session) Kick(reason string) {
	s.closeWith(websocket.ClosePolicyViolation, reason)
}

func (s *session) accessLevel() types.AccessLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *session) setAccessLevel(level types.AccessLevel) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

// run walks the handshake and, once authorized and hydrated, serves frames
// until the connection drops or the session is closed.
func (s *session) run(ctx context.Context, pageExternalID string, clientIP net.IP) {
	defer s.conn.Close() // nolint: errcheck

	srv := s.server
	log := logrus.WithFields(logrus.Fields{
		"session_id": s.id,
		"page":       pageExternalID,
	})

	// Rate check first: the budget guards everything behind it, including
	// the authorization queries. The connection was accepted so the client
	// receives a proper close code rather than a failed upgrade.
	if !srv.limiter.AllowConnect(ctx, s.user, clientIP) {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteJSON(types.ControlMessage{
			Code:    types.ControlRateLimited,
			Message: "too many connection attempts",
		})
		s.closeWith(types.CloseRateLimited, "rate limited")
		return
	}

	page, err := srv.workspace.PageByExternalID(ctx, pageExternalID)
	if err != nil {
		log.WithError(err).Error("Failed to look up page")
		s.closeWith(websocket.CloseInternalServerErr, "internal error")
		return
	}
	if page == nil {
		s.closeWith(types.ClosePageNotFound, "page not found")
		return
	}
	project, err := srv.workspace.ProjectByID(ctx, page.ProjectID)
	if err != nil {
		log.WithError(err).Error("Failed to look up project")
		s.closeWith(websocket.CloseInternalServerErr, "internal error")
		return
	}
	if project == nil {
		s.closeWith(types.ClosePageNotFound, "page not found")
		return
	}
	s.page, s.project = page, project

	level, err := srv.resolver.AccessLevel(ctx, s.user, page, project)
	if err != nil {
		log.WithError(err).Error("Failed to resolve access")
		s.closeWith(websocket.CloseInternalServerErr, "internal error")
		return
	}
	if !level.CanRead() {
		s.closeWith(types.CloseForbidden, "forbidden")
		return
	}
	s.setAccessLevel(level)

	r, err := srv.rooms.Attach(ctx, page.RoomID())
	if err != nil {
		log.WithError(err).Error("Failed to hydrate room")
		s.closeWith(websocket.CloseInternalServerErr, "failed to load document")
		return
	}
	s.room = r
	srv.hub.Join(r.ID(), s)
	defer func() {
		srv.hub.Leave(r.ID(), s.id)
		srv.rooms.Release(ctx, r)
	}()

	log.WithField("level", level.String()).Debug("Session serving")

	go s.writePump()
	go s.controlLoop(ctx)
	defer s.closeWith(types.CloseNormal, "")

	// Kick off sync: the client answers our state vector with the ops we
	// are missing, and requests its own diff the same way.
	s.QueueFrame(crdt.EncodeSyncStep1(r.StateVector()))

	s.readLoop(ctx)
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(int64(s.server.cfg.MaxMessageBytes))
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		s.handleFrame(ctx, data)
	}
}

func (s *session) handleFrame(ctx context.Context, frame []byte) {
	msg, err := crdt.DecodeMessage(frame)
	if err != nil {
		s.queueControl(types.ControlMessage{Code: types.ControlError, Message: "malformed frame"})
		return
	}

	switch msg.Type {
	case crdt.MsgAwareness:
		// Presence data, not document state: relayed without persistence
		// and without a write-permission check.
		s.server.hub.Broadcast(ctx, s.room.ID(), frame, s.id)

	case crdt.MsgSync:
		switch msg.Step {
		case crdt.SyncStep1:
			// Always admitted; viewers need to catch up too.
			diff, err := s.room.Diff(msg.Payload)
			if err != nil {
				s.queueControl(types.ControlMessage{Code: types.ControlError, Message: "malformed state vector"})
				return
			}
			s.QueueFrame(crdt.EncodeSyncStep2(diff))

		case crdt.SyncStep2, crdt.SyncUpdate:
			s.applyMutation(ctx, msg.Payload, frame)
		}
	}
}

func (s *session) applyMutation(ctx context.Context, update, frame []byte) {
	if s.writeLimiter != nil && !s.writeLimiter.Allow() {
		s.queueControl(types.ControlMessage{Code: types.ControlRateLimited, Message: "write rate exceeded"})
		return
	}
	if !s.accessLevel().CanWrite() {
		s.queueControl(types.ControlMessage{Code: types.ControlReadOnly, Message: "you do not have edit access to this page"})
		return
	}
	meta := s.updateMeta()
	if err := s.room.ApplyUpdate(ctx, update, meta, frame, s.id); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": s.id,
			"room_id":    s.room.ID(),
		}).Warn("Rejected update")
		s.queueControl(types.ControlMessage{Code: types.ControlError, Message: "update rejected"})
	}
}

func (s *session) updateMeta() []byte {
	var userID int64
	if s.user != nil {
		userID = s.user.ID
	}
	meta, err := json.Marshal(struct {
		UserID    int64  `json:"user_id,omitempty"`
		SessionID string `json:"session_id"`
	}{UserID: userID, SessionID: s.id})
	if err != nil {
		return nil
	}
	return meta
}

// queueControl queues a control message for the client; a full queue closes
// the session the same way the hub would.
func (s *session) queueControl(msg types.ControlMessage) {
	select {
	case s.out <- outbound{control: &msg}:
	default:
		s.Kick("slow consumer")
	}
}

// sendControlThenClose delivers one final control message and then closes
// with the given code. The write pump performs both steps so the text
// frame reaches the wire before the close frame. A full queue forfeits
// the notification rather than the close.
func (s *session) sendControlThenClose(msg types.ControlMessage, code int, reason string) {
	select {
	case s.out <- outbound{control: &msg, closeCode: code, closeReason: reason}:
	default:
		s.closeWith(code, reason)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case out := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			var err error
			if out.control != nil {
				err = s.conn.WriteJSON(out.control)
			} else {
				err = s.conn.WriteMessage(websocket.BinaryMessage, out.frame)
			}
			if err != nil {
				s.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
			if out.closeCode != 0 {
				s.closeWith(out.closeCode, out.closeReason)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(
				websocket.PingMessage, nil, time.Now().Add(writeWait),
			); err != nil {
				s.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

// closeWith sends a close frame and tears the connection down. Safe from
// any goroutine; only the first close wins.
func (s *session) closeWith(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		deadline := time.Now().Add(writeWait)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			deadline,
		)
		_ = s.conn.Close()
	})
}
