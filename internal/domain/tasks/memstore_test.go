package tasks_test

import (
	"context"
	"sync"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/tasks"
	"github.com/okian/tapbattle/pkg/errs"
)

type progressKey struct{ player, task string }

// memStore is an in-memory tasks.Store. A failing callback discards every
// staged write.
type memStore struct {
	mu       sync.Mutex
	players  map[string]*model.Player
	progress map[progressKey]*model.TaskProgress
}

func newMemStore(players ...*model.Player) *memStore {
	s := &memStore{players: map[string]*model.Player{}, progress: map[progressKey]*model.TaskProgress{}}
	for _, p := range players {
		c := *p
		s.players[p.ID] = &c
	}
	return s
}

func (s *memStore) player(id string) model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.players[id]
}

func (s *memStore) task(playerID, taskID string) *model.TaskProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp, ok := s.progress[progressKey{playerID, taskID}]
	if !ok {
		return nil
	}
	c := *tp
	return &c
}

func (s *memStore) InTaskTx(_ context.Context, _ []string, fn func(tasks.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s, players: map[string]*model.Player{}, progress: map[progressKey]*model.TaskProgress{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.players {
		s.players[id] = p
	}
	for k, tp := range tx.progress {
		s.progress[k] = tp
	}
	return nil
}

type memTx struct {
	s        *memStore
	players  map[string]*model.Player
	progress map[progressKey]*model.TaskProgress
}

func (t *memTx) staged(id string) (*model.Player, error) {
	if p, ok := t.players[id]; ok {
		return p, nil
	}
	p, ok := t.s.players[id]
	if !ok {
		return nil, errs.Newf("mem.player", errs.ErrNotFound, "player %s not found", id)
	}
	c := *p
	t.players[id] = &c
	return &c, nil
}

func (t *memTx) Player(id string) (*model.Player, error) {
	p, err := t.staged(id)
	if err != nil {
		return nil, err
	}
	c := *p
	return &c, nil
}

func (t *memTx) PlayerByReferralCode(code string) (*model.Player, error) {
	for id, p := range t.s.players {
		if p.ReferralCode == code {
			return t.Player(id)
		}
	}
	return nil, errs.Newf("mem.referral", errs.ErrNotFound, "referral code %s not found", code)
}

func (t *memTx) TaskProgress(playerID, taskID string) (*model.TaskProgress, bool, error) {
	k := progressKey{playerID, taskID}
	tp, ok := t.progress[k]
	if !ok {
		tp, ok = t.s.progress[k]
	}
	if !ok {
		return nil, false, nil
	}
	c := *tp
	return &c, true, nil
}

func (t *memTx) SaveTaskProgress(tp *model.TaskProgress) error {
	c := *tp
	t.progress[progressKey{tp.PlayerID, tp.TaskID}] = &c
	return nil
}

func (t *memTx) AddCoins(playerID string, coins int64) error {
	p, err := t.staged(playerID)
	if err != nil {
		return err
	}
	p.Coins += coins
	return nil
}

func (t *memTx) LinkReferral(playerID, referrerID string) error {
	p, err := t.staged(playerID)
	if err != nil {
		return err
	}
	if p.ReferredBy != "" {
		return errs.NewKind("mem.link_referral", errs.ErrStateConflict)
	}
	p.ReferredBy = referrerID
	return nil
}

func (t *memTx) AddReferralEarnings(playerID string, amount int64) error {
	p, err := t.staged(playerID)
	if err != nil {
		return err
	}
	p.ReferralEarnings += amount
	return nil
}
