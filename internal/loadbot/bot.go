package loadbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/tapbattle/pkg/logger"
)

// Gateway actions used by the bot.
const (
	actionInit              = "init"
	actionTap               = "tap"
	actionBattleStart       = "battleStart"
	actionBattleTurn        = "battleTurn"
	actionCancelMatchmaking = "cancelMatchmaking"

	eventInitialized    = "initialized"
	eventTapResult      = "tapResult"
	eventBattleStarted  = "battleStarted"
	eventTurnProcessed  = "battleTurnProcessed"
	eventCompleted      = "battleCompleted"
	eventWaiting        = "waitingForOpponent"
	eventBattleCanceled = "battleCancelled"
	eventMatchCancelled = "matchmakingCancelled"
	eventError          = "error"
)

const busyBackoff = 50 * time.Millisecond

var errAwaitTimeout = errors.New("timed out waiting for server event")

type frame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func (f frame) message() string {
	var e struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(f.Data, &e)
	return e.Message
}

// bot is one simulated player connection.
type bot struct {
	id     string
	cfg    *Config
	stats  *Stats
	conn   *websocket.Conn
	frames chan frame
	log    logger.Logger
}

func dialBot(ctx context.Context, cfg *Config, stats *Stats, id string) (*bot, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.WSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.WSURL, err)
	}
	b := &bot{
		id:     id,
		cfg:    cfg,
		stats:  stats,
		conn:   conn,
		frames: make(chan frame, 64),
		log:    logger.Get().Named("bot"),
	}
	go b.readLoop()
	return b, nil
}

func (b *bot) readLoop() {
	defer close(b.frames)
	for {
		var f frame
		if err := b.conn.ReadJSON(&f); err != nil {
			return
		}
		b.frames <- f
	}
}

func (b *bot) close() {
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = b.conn.Close()
}

func (b *bot) send(action string, data any) error {
	return b.conn.WriteJSON(map[string]any{"action": action, "data": data})
}

// await returns the first frame whose action is one of actions.
func (b *bot) await(ctx context.Context, actions ...string) (frame, error) {
	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return frame{}, ctx.Err()
		case <-timer.C:
			return frame{}, fmt.Errorf("%w: %s", errAwaitTimeout, strings.Join(actions, "|"))
		case f, ok := <-b.frames:
			if !ok {
				return frame{}, errors.New("connection closed")
			}
			if slices.Contains(actions, f.Action) {
				return f, nil
			}
		}
	}
}

// play runs the bot's whole session and returns what was accepted.
func (b *bot) play(ctx context.Context) (player, error) {
	if err := b.send(actionInit, map[string]string{"player_id": b.id, "username": b.id}); err != nil {
		return player{}, err
	}
	if _, err := b.await(ctx, eventInitialized); err != nil {
		return player{}, err
	}
	res := player{ID: b.id}
	for range b.cfg.TapsPerPlayer {
		if err := b.tap(ctx, &res); err != nil {
			return res, err
		}
		if b.cfg.TapInterval > 0 {
			time.Sleep(b.cfg.TapInterval)
		}
	}
	if b.cfg.PvP {
		if err := b.fight(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (b *bot) tap(ctx context.Context, res *player) error {
	if err := b.send(actionTap, nil); err != nil {
		return err
	}
	b.stats.TapsSent.Add(1)
	f, err := b.await(ctx, eventTapResult, eventError)
	if err != nil {
		return err
	}
	if f.Action == eventError {
		b.stats.TapsRejected.Add(1)
		return nil
	}
	b.stats.TapsAccepted.Add(1)
	res.Accepted++
	return nil
}

// fight queues for PvP and submits attacks until the battle ends.
func (b *bot) fight(ctx context.Context) error {
	if err := b.send(actionBattleStart, map[string]any{"battle_type": "pvp", "energy_to_spend": b.cfg.Stake}); err != nil {
		return err
	}
	f, err := b.await(ctx, eventBattleStarted, eventMatchCancelled, eventError)
	switch {
	case errors.Is(err, errAwaitTimeout):
		b.stats.MatchTimeouts.Add(1)
		return b.send(actionCancelMatchmaking, nil)
	case err != nil:
		return err
	case f.Action != eventBattleStarted:
		b.log.Debug(ctx, "not matched", logger.PlayerID(b.id), logger.String("reason", f.message()))
		return nil
	}
	b.stats.BattlesStarted.Add(1)
	var started struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(f.Data, &started); err != nil {
		return fmt.Errorf("decode battle: %w", err)
	}

	for round := 0; round < b.cfg.MaxRounds; round++ {
		if err := b.send(actionBattleTurn, map[string]string{"battle_id": started.ID, "action": "attack"}); err != nil {
			return err
		}
		f, err := b.await(ctx, eventTurnProcessed, eventCompleted, eventBattleCanceled, eventError)
		if err != nil {
			return err
		}
		switch f.Action {
		case eventCompleted:
			b.stats.BattlesCompleted.Add(1)
			return nil
		case eventBattleCanceled:
			b.stats.BattlesCancelled.Add(1)
			return nil
		case eventError:
			// The previous turn's guard may not have been released yet.
			if strings.Contains(f.message(), "retry") {
				b.stats.BusyRetries.Add(1)
				round--
				time.Sleep(busyBackoff)
				continue
			}
			return fmt.Errorf("turn rejected: %s", f.message())
		}
	}
	return nil
}
