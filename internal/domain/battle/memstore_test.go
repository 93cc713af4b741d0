package battle_test

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
)

// memStore is an in-memory battle.Store. Transactions work on copies and
// commit only when the callback succeeds.
type memStore struct {
	mu      sync.Mutex
	players map[string]*model.Player
	battles map[string]*model.Battle
	down    bool
	txCount int
}

func newMemStore() *memStore {
	return &memStore{players: map[string]*model.Player{}, battles: map[string]*model.Battle{}}
}

func clonePlayer(p *model.Player) *model.Player {
	c := *p
	c.Avatars = append([]model.Avatar(nil), p.Avatars...)
	return &c
}

func (s *memStore) put(p *model.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = clonePlayer(p)
}

func (s *memStore) player(id string) *model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePlayer(s.players[id])
}

// finish marks a stored battle completed.
func (s *memStore) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battles[id].Status = model.StatusCompleted
}

func (s *memStore) Player(_ context.Context, id string) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errs.NewKind("mem.player", errs.ErrUnavailable)
	}
	p, ok := s.players[id]
	if !ok {
		return nil, errs.Newf("mem.player", errs.ErrNotFound, "player %s not found", id)
	}
	return clonePlayer(p), nil
}

func (s *memStore) Battle(_ context.Context, id string) (*model.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return nil, errs.Newf("mem.battle", errs.ErrNotFound, "battle %s not found", id)
	}
	return b.Clone(), nil
}

func (s *memStore) RecentBattles(_ context.Context, playerID string, limit int) ([]model.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Battle
	for _, b := range s.battles {
		if b.PlayerID == playerID || b.OpponentID == playerID {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SaveProgress(_ context.Context, b *model.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.battles[b.ID]
	if !ok || cur.Status != model.StatusInProgress {
		return errs.NewKind("mem.save_progress", errs.ErrStateConflict)
	}
	s.battles[b.ID] = b.Clone()
	return nil
}

func (s *memStore) InTx(_ context.Context, _ []string, fn func(battle.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errs.NewKind("mem.tx", errs.ErrUnavailable)
	}
	tx := &memTx{s: s, players: map[string]*model.Player{}, battles: map[string]*model.Battle{}, coins: map[string]int64{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.players {
		p.Coins = s.players[id].Coins + tx.coins[id]
		s.players[id] = p
	}
	for id, b := range tx.battles {
		s.battles[id] = b
	}
	s.txCount++
	return nil
}

type memTx struct {
	s       *memStore
	players map[string]*model.Player
	battles map[string]*model.Battle
	coins   map[string]int64
}

func (t *memTx) Player(id string) (*model.Player, error) {
	if p, ok := t.players[id]; ok {
		return clonePlayer(p), nil
	}
	p, ok := t.s.players[id]
	if !ok {
		return nil, errs.Newf("mem.tx.player", errs.ErrNotFound, "player %s not found", id)
	}
	return clonePlayer(p), nil
}

func (t *memTx) staged(id string) *model.Player {
	if p, ok := t.players[id]; ok {
		return p
	}
	p := clonePlayer(t.s.players[id])
	t.players[id] = p
	return p
}

func (t *memTx) SetEnergy(p *model.Player) error {
	st := t.staged(p.ID)
	st.Energy = p.Energy
	st.LastEnergyUpdate = p.LastEnergyUpdate
	return nil
}

func (t *memTx) ActiveBattle(playerID string) (string, bool, error) {
	for id, b := range t.s.battles {
		if b.Status == model.StatusInProgress && (b.PlayerID == playerID || b.OpponentID == playerID) {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (t *memTx) CreateBattle(b *model.Battle) error {
	t.battles[b.ID] = b.Clone()
	return nil
}

func (t *memTx) FinishBattle(b *model.Battle) error {
	cur, ok := t.s.battles[b.ID]
	if !ok || cur.Status != model.StatusInProgress {
		return errs.NewKind("mem.tx.finish", errs.ErrStateConflict)
	}
	t.battles[b.ID] = b.Clone()
	return nil
}

func (t *memTx) Reward(p *model.Player, avatar *model.Avatar, coins int64) error {
	st := t.staged(p.ID)
	st.Level = p.Level
	st.SkillPoints = p.SkillPoints
	if avatar != nil {
		for i := range st.Avatars {
			if st.Avatars[i].ID == avatar.ID {
				st.Avatars[i].Experience = avatar.Experience
				st.Avatars[i].ExperienceNeeded = avatar.ExperienceNeeded
			}
		}
	}
	t.coins[p.ID] += coins
	return nil
}
