// Package repository persists players, avatars, battles and task progress
// through gorm on postgres or sqlite.
//
// Multi-row writes run inside InTx/InTaskTx, which hold per-player locks for
// the duration of the transaction. Coin writes are increments so concurrent
// session flushes and battle rewards merge instead of overwriting each other.
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/tasks"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/keylock"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Counts summarises stored rows for the stats endpoint.
type Counts struct {
	Players       int64 `json:"players"`
	Battles       int64 `json:"battles"`
	ActiveBattles int64 `json:"active_battles"`
}

// GormStore implements battle.Store, tasks.Store and the session store.
type GormStore struct {
	db       *gorm.DB
	locks    *keylock.Locker
	log      logger.Logger
	now      func() time.Time
	newID    func() string
	queryLog bool
	maxOpen  int
}

var (
	_ battle.Store = (*GormStore)(nil)
	_ tasks.Store  = (*GormStore)(nil)
)

// Open connects to the configured database.
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*GormStore, error) {
	const op = "repository.open"
	s := newStore(opts...)
	var dialector gorm.Dialector
	switch driverName {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
		s.maxOpen = 1
	default:
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrUnsupportedDriver)
	}
	level := gormlogger.Silent
	if s.queryLog {
		level = gormlogger.Warn
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return s.now().UTC() },
	})
	if err != nil {
		return nil, classify(op, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, classify(op, err)
	}
	if s.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(s.maxOpen)
	}
	s.db = db
	if err := s.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.log.Info(ctx, "store opened", logger.String("driver", driverName))
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, opts ...Option) *GormStore {
	s := newStore(opts...)
	s.db = db
	return s
}

func newStore(opts ...Option) *GormStore {
	s := &GormStore{
		locks: keylock.New(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("repository")
	}
	return s
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(&model.Player{}, &model.Avatar{}, &model.Battle{}, &model.TaskProgress{})
	return classify("repository.migrate", err)
}

// Ping checks connectivity and updates the availability gauge.
func (s *GormStore) Ping(ctx context.Context) error {
	const op = "repository.ping"
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	metrics.UpdateStoreAvailable(err == nil)
	if err != nil {
		return errs.WrapKind(op, errs.ErrUnavailable, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("repository.close", err)
	}
	return classify("repository.close", sqlDB.Close())
}

func (s *GormStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// Player loads a player with its avatars.
func (s *GormStore) Player(ctx context.Context, id string) (*model.Player, error) {
	defer s.observe("player", time.Now())
	return loadPlayer(s.db.WithContext(ctx), id)
}

func loadPlayer(db *gorm.DB, id string) (*model.Player, error) {
	var p model.Player
	err := db.Preload("Avatars", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, classify("repository.player", err)
	}
	return &p, nil
}

// EnsurePlayer returns the player, creating it with a starter avatar on first
// contact. created reports whether this call inserted the row.
func (s *GormStore) EnsurePlayer(ctx context.Context, id, username string) (*model.Player, bool, error) {
	const op = "repository.ensure_player"
	if strings.TrimSpace(id) == "" {
		return nil, false, errs.Newf(op, errs.ErrValidation, "player id is required")
	}
	defer s.observe("ensure_player", time.Now())
	unlock := s.locks.Lock(id)
	defer unlock()

	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		if username == "" {
			username = id
		}
		p := model.Player{
			ID:               id,
			Username:         username,
			Energy:           model.DefaultMaxEnergy,
			MaxEnergy:        model.DefaultMaxEnergy,
			EnergyRegenRate:  model.DefaultEnergyRegenRate,
			LastEnergyUpdate: now,
			Level:            model.DefaultLevel,
			ReferralCode:     referralCode(s.newID()),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit("Avatars").Create(&p)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		avatar := model.Avatar{
			ID:               s.newID(),
			PlayerID:         id,
			Name:             "Rookie",
			Power:            model.StarterPower,
			Defense:          model.StarterDefense,
			Speed:            model.StarterSpeed,
			Health:           model.StarterHealth,
			ExperienceNeeded: model.DefaultExperienceNeeded,
		}
		if err := tx.Create(&avatar).Error; err != nil {
			return err
		}
		created = true
		return tx.Model(&model.Player{}).Where("id = ?", id).Update("active_avatar_id", avatar.ID).Error
	})
	if err != nil {
		return nil, false, classify(op, err)
	}
	p, err := s.Player(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info(ctx, "player created", logger.PlayerID(id))
	}
	return p, created, nil
}

func referralCode(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	return strings.ToUpper(hex[len(hex)-10:])
}

// SelectAvatar sets the player's active avatar to one they own.
func (s *GormStore) SelectAvatar(ctx context.Context, playerID, avatarID string) (*model.Player, error) {
	const op = "repository.select_avatar"
	unlock := s.locks.Lock(playerID)
	defer unlock()
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !p.Owns(avatarID) {
		return nil, errs.Newf(op, errs.ErrValidation, "avatar %s is not owned by player %s", avatarID, playerID)
	}
	err = s.db.WithContext(ctx).Model(&model.Player{}).Where("id = ?", playerID).Update("active_avatar_id", avatarID).Error
	if err != nil {
		return nil, classify(op, err)
	}
	p.ActiveAvatarID = avatarID
	return p, nil
}

// FlushTaps adds coins and overwrites energy with the cached value.
func (s *GormStore) FlushTaps(ctx context.Context, playerID string, coins int64, energyLeft int, at time.Time) error {
	const op = "repository.flush_taps"
	defer s.observe("flush_taps", time.Now())
	res := s.db.WithContext(ctx).Model(&model.Player{}).Where("id = ?", playerID).Updates(map[string]any{
		"coins":              gorm.Expr("coins + ?", coins),
		"energy":             energyLeft,
		"last_energy_update": at.UTC(),
	})
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Newf(op, errs.ErrNotFound, "player %s not found", playerID)
	}
	return nil
}

// Battle loads a battle by id.
func (s *GormStore) Battle(ctx context.Context, id string) (*model.Battle, error) {
	defer s.observe("battle", time.Now())
	var b model.Battle
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, classify("repository.battle", err)
	}
	return &b, nil
}

// RecentBattles lists battles the player took part in, newest first.
func (s *GormStore) RecentBattles(ctx context.Context, playerID string, limit int) ([]model.Battle, error) {
	defer s.observe("recent_battles", time.Now())
	var out []model.Battle
	err := s.db.WithContext(ctx).
		Where("player_id = ? OR opponent_id = ?", playerID, playerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, classify("repository.recent_battles", err)
	}
	return out, nil
}

// SaveProgress writes rounds and current health of an in-progress battle.
func (s *GormStore) SaveProgress(ctx context.Context, b *model.Battle) error {
	const op = "repository.save_progress"
	defer s.observe("save_progress", time.Now())
	res := s.db.WithContext(ctx).Model(&model.Battle{}).
		Where("id = ? AND status = ?", b.ID, model.StatusInProgress).
		Select("rounds", "user_current_health", "opponent_current_health").
		Updates(b)
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Newf(op, errs.ErrStateConflict, "battle %s is not in progress", b.ID)
	}
	return nil
}

// Counts returns row counts for players and battles.
func (s *GormStore) Counts(ctx context.Context) (Counts, error) {
	const op = "repository.counts"
	var c Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Player{}).Count(&c.Players).Error; err != nil {
		return c, classify(op, err)
	}
	if err := db.Model(&model.Battle{}).Count(&c.Battles).Error; err != nil {
		return c, classify(op, err)
	}
	if err := db.Model(&model.Battle{}).Where("status = ?", model.StatusInProgress).Count(&c.ActiveBattles).Error; err != nil {
		return c, classify(op, err)
	}
	return c, nil
}

// InTx runs fn in a transaction while holding the players' locks.
func (s *GormStore) InTx(ctx context.Context, playerIDs []string, fn func(battle.Tx) error) error {
	return s.inTx(ctx, "repository.tx", playerIDs, func(t *gormTx) error { return fn(t) })
}

// InTaskTx is InTx for the task service.
func (s *GormStore) InTaskTx(ctx context.Context, playerIDs []string, fn func(tasks.Tx) error) error {
	return s.inTx(ctx, "repository.task_tx", playerIDs, func(t *gormTx) error { return fn(t) })
}

func (s *GormStore) inTx(ctx context.Context, op string, playerIDs []string, fn func(*gormTx) error) error {
	defer s.observe("tx", time.Now())
	unlock := s.locks.LockAll(playerIDs...)
	defer unlock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	return classify(op, err)
}
