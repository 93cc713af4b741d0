// Package realtime is the websocket event gateway. It binds each connection
// to a player session, routes inbound actions to sessions, battles and the
// matchmaking queue, and fans PvP results out to both participants.
//
// Taps and matchmaking control are handled inline by the read pump. Battle
// actions run off the read pump behind a per-connection busy guard, so a
// second battle action sent before the first finished is rejected.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/tapbattle/internal/adapters/mq/queue"
	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/session"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
)

// Default gateway configuration constants.
const (
	defaultBusyTimeout = 10 * time.Second
	defaultSendBuffer  = 64
)

// Battles is the battle lifecycle used by the gateway.
type Battles interface {
	Get(ctx context.Context, id string) (*model.Battle, error)
	StartPve(ctx context.Context, req battle.PveRequest) (*model.Battle, error)
	StartPvp(ctx context.Context, req battle.PvpRequest) (*model.Battle, error)
	SubmitTurn(ctx context.Context, battleID, playerID string, action model.ActionType) (*model.Battle, error)
	SubmitPvpTurn(ctx context.Context, turn battle.PvpTurn) (battle.TurnResult, error)
	AutoResolve(ctx context.Context, battleID, playerID string) (*model.Battle, error)
	Cancel(ctx context.Context, battleID, playerID string) (*model.Battle, error)
}

// Players reads player records for matchmaking entries.
type Players interface {
	Player(ctx context.Context, id string) (*model.Player, error)
}

// Gateway serves websocket connections.
type Gateway struct {
	sessions    *session.Manager
	battles     Battles
	players     Players
	queue       *queue.MatchQueue
	hub         *Hub
	upgrader    websocket.Upgrader
	origins     []string
	busyTimeout time.Duration
	sendBuffer  int
	newID       func() string
	now         func() time.Time
	log         logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	work   sync.WaitGroup

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
}

// NewGateway creates a Gateway. q must have been built with a MatchStarter
// over the same sessions and battles.
func NewGateway(sessions *session.Manager, battles Battles, players Players, q *queue.MatchQueue, opts ...Option) *Gateway {
	g := &Gateway{
		sessions:    sessions,
		battles:     battles,
		players:     players,
		queue:       q,
		hub:         NewHub(),
		busyTimeout: defaultBusyTimeout,
		sendBuffer:  defaultSendBuffer,
		newID:       uuid.NewString,
		now:         time.Now,
		clients:     make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.Get().Named("realtime")
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin:      g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Hub returns the player connection registry.
func (g *Gateway) Hub() *Hub { return g.hub }

// Connections returns the number of open connections.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := newClient(g, g.newID(), conn)
	g.mu.Lock()
	g.clients[c] = struct{}{}
	n := len(g.clients)
	g.mu.Unlock()
	metrics.UpdateWSConnections(n)
	g.log.Debug(g.ctx, "websocket connected", logger.ConnID(c.id))

	go c.writePump()
	c.readPump(g.ctx)
}

// dispatch routes one inbound frame. It runs on the client's read pump.
func (g *Gateway) dispatch(ctx context.Context, c *Client, in inbound) {
	switch in.Action {
	case ActionInit:
		g.handleInit(ctx, c, in)
	case ActionTap:
		g.handleTap(ctx, c)
	case ActionCancelMatchmaking:
		g.handleCancelMatchmaking(ctx, c)
	case ActionBattleStart:
		g.guarded(ctx, c, in, g.handleBattleStart)
	case ActionBattleTurn:
		g.guarded(ctx, c, in, g.handleBattleTurn)
	case ActionBattleAutoResolve:
		g.guarded(ctx, c, in, g.handleAutoResolve)
	default:
		c.notifyError(errs.WrapKind("realtime.dispatch", errs.ErrValidation, ErrUnknownAction))
	}
}

// guarded runs fn off the read pump while holding c's busy guard.
func (g *Gateway) guarded(ctx context.Context, c *Client, in inbound, fn func(context.Context, *Client, inbound)) {
	token, ok := c.guard.TryAcquire()
	if !ok {
		metrics.RecordBusyRejection()
		c.notifyError(errs.WrapKind("realtime.guard", errs.ErrStateConflict, ErrBusy))
		return
	}
	g.work.Add(1)
	go func() {
		defer g.work.Done()
		defer c.guard.Release(token)
		fn(ctx, c, in)
	}()
}

// BroadcastEnergy sends energyUpdated to each snapshot's player.
func (g *Gateway) BroadcastEnergy(snaps []session.Snapshot) int {
	sent := 0
	for _, s := range snaps {
		sent += g.hub.Send(s.PlayerID, ActionEnergyUpdated, s)
	}
	return sent
}

// disconnect runs once per connection after it closed.
func (g *Gateway) disconnect(c *Client) {
	ctx := context.WithoutCancel(g.ctx)
	g.mu.Lock()
	delete(g.clients, c)
	n := len(g.clients)
	g.mu.Unlock()
	metrics.UpdateWSConnections(n)

	playerID := c.PlayerID()
	if playerID == "" {
		return
	}
	if g.hub.Remove(playerID, c) == 0 {
		g.queue.Cancel(ctx, playerID)
		if s := c.session(); s != nil {
			g.abandon(ctx, s)
		}
	}
	g.sessions.Close(ctx, c.id)
	g.log.Debug(ctx, "websocket disconnected",
		logger.ConnID(c.id),
		logger.PlayerID(playerID))
}

// abandon cancels the player's in-flight PvP battle and tells the partner.
func (g *Gateway) abandon(ctx context.Context, s *session.Session) {
	id := s.ActiveBattle()
	if id == "" {
		return
	}
	b, err := g.battles.Get(ctx, id)
	if err != nil || b.Type != model.BattlePvP || b.Status.Terminal() {
		return
	}
	cancelled, err := g.battles.Cancel(ctx, id, s.PlayerID())
	if err != nil {
		g.log.Warn(ctx, "cancel abandoned battle failed",
			logger.BattleID(id), logger.Error(err))
		return
	}
	s.ClearActiveBattle(id)
	partner := cancelled.PlayerID
	if partner == s.PlayerID() {
		partner = cancelled.OpponentID
	}
	if ps, ok := g.sessions.ForPlayer(partner); ok {
		ps.ClearActiveBattle(id)
	}
	g.hub.Send(partner, ActionBattleCancelled, cancelledPayload{BattleID: id, Reason: "opponent disconnected"})
}

// Close stops accepting connections, closes every open one and waits for
// running battle actions.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	g.work.Wait()
	g.cancel()
	return nil
}

// messageOf is the client-facing text for err.
func messageOf(err error) string {
	return errs.Message(err)
}
