package battle

import (
	"context"

	"github.com/okian/tapbattle/internal/domain/model"
)

// Store is the persistence the manager needs. Implementations classify
// failures with errs kinds: unknown ids are ErrNotFound and an unreachable
// backend is ErrUnavailable.
type Store interface {
	Player(ctx context.Context, id string) (*model.Player, error)
	Battle(ctx context.Context, id string) (*model.Battle, error)
	// RecentBattles lists battles the player took part in, newest first.
	RecentBattles(ctx context.Context, playerID string, limit int) ([]model.Battle, error)
	// SaveProgress persists rounds and health of a battle still in progress.
	SaveProgress(ctx context.Context, b *model.Battle) error
	// InTx runs fn atomically while holding the given players' locks.
	InTx(ctx context.Context, playerIDs []string, fn func(Tx) error) error
}

// Tx is the transactional view handed to Store.InTx callbacks.
type Tx interface {
	// Player loads a player with its avatars.
	Player(id string) (*model.Player, error)
	// SetEnergy writes energy and last_energy_update only.
	SetEnergy(p *model.Player) error
	// ActiveBattle returns the id of an in-progress battle the player takes
	// part in, if any.
	ActiveBattle(playerID string) (string, bool, error)
	CreateBattle(b *model.Battle) error
	// FinishBattle writes a terminal battle. It fails with ErrStateConflict
	// when the stored battle is no longer in progress.
	FinishBattle(b *model.Battle) error
	// Reward adds coins as an increment and writes level, skill points and
	// the avatar's experience fields.
	Reward(p *model.Player, avatar *model.Avatar, coins int64) error
}
