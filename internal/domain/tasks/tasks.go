// Package tasks credits task completions and referrals.
//
// Task definitions live elsewhere; this package only tracks per-player
// progress and pays rewards exactly once per player and task. Coin credits
// are increments so they merge with concurrent session flushes.
package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
)

// Store is the persistence used by the service.
type Store interface {
	InTaskTx(ctx context.Context, playerIDs []string, fn func(Tx) error) error
}

// Tx is the transactional view handed to Store.InTaskTx callbacks.
type Tx interface {
	Player(id string) (*model.Player, error)
	PlayerByReferralCode(code string) (*model.Player, error)
	// TaskProgress returns the record and whether it exists.
	TaskProgress(playerID, taskID string) (*model.TaskProgress, bool, error)
	SaveTaskProgress(tp *model.TaskProgress) error
	AddCoins(playerID string, coins int64) error
	// LinkReferral sets referred_by once. It fails with ErrStateConflict
	// when the player was already referred.
	LinkReferral(playerID, referrerID string) error
	AddReferralEarnings(playerID string, amount int64) error
}

// CompleteRequest marks a task complete.
type CompleteRequest struct {
	PlayerID     string
	TaskID       string
	Type         model.TaskType
	Target       int
	RewardPoints int64
	Metadata     model.TaskMetadata
}

// ProgressRequest advances a task by Delta.
type ProgressRequest struct {
	PlayerID     string
	TaskID       string
	Type         model.TaskType
	Target       int
	Delta        int
	RewardPoints int64
	Metadata     model.TaskMetadata
}

// Result reports the stored progress and whether this call paid the reward.
type Result struct {
	Progress *model.TaskProgress
	Credited bool
}

// Service implements task completion and the referral hook.
type Service struct {
	store          Store
	log            logger.Logger
	now            func() time.Time
	referralBonus  int64
	referTaskID    string
	referTarget    int
	referTaskPrize int64
}

// Option configures a Service.
type Option func(*Service)

// WithReferralBonus sets the coins a referrer earns per referral.
func WithReferralBonus(coins int64) Option {
	return func(s *Service) {
		if coins >= 0 {
			s.referralBonus = coins
		}
	}
}

// WithReferTask sets the task advanced for a referrer on every referral.
func WithReferTask(taskID string, target int, reward int64) Option {
	return func(s *Service) {
		if taskID != "" && target > 0 {
			s.referTaskID, s.referTarget, s.referTaskPrize = taskID, target, reward
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		now:            time.Now,
		referralBonus:  500,
		referTaskID:    "refer",
		referTarget:    5,
		referTaskPrize: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("tasks")
	}
	return s
}

func validateIDs(op, playerID, taskID string) error {
	if strings.TrimSpace(playerID) == "" || strings.TrimSpace(taskID) == "" {
		return errs.Newf(op, errs.ErrValidation, "player id and task id are required")
	}
	return nil
}

// Complete marks the task complete and credits RewardPoints on the first call.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (Result, error) {
	const op = "tasks.complete"
	if err := validateIDs(op, req.PlayerID, req.TaskID); err != nil {
		return Result{}, err
	}
	if req.Target <= 0 {
		req.Target = 1
	}
	var res Result
	err := s.store.InTaskTx(ctx, []string{req.PlayerID}, func(tx Tx) error {
		if _, err := tx.Player(req.PlayerID); err != nil {
			return err
		}
		tp, err := s.load(tx, req.PlayerID, req.TaskID, req.Type, req.Target, req.RewardPoints)
		if err != nil {
			return err
		}
		if tp.Completed {
			res.Progress = tp
			return nil
		}
		if tp.Metadata, err = MergeMetadata(tp.Metadata, req.Metadata); err != nil {
			return err
		}
		tp.Progress = max(tp.Progress, tp.Target)
		credited, err := s.finish(tx, tp)
		if err != nil {
			return err
		}
		res = Result{Progress: tp, Credited: credited}
		return nil
	})
	if err != nil {
		return Result{}, errs.Wrap(op, err)
	}
	if res.Credited {
		s.log.Info(ctx, "task completed",
			logger.PlayerID(req.PlayerID),
			logger.String("task_id", req.TaskID),
			logger.Int64("reward", res.Progress.RewardPoints))
	}
	return res, nil
}

// Progress advances the task by Delta and completes it when the target is reached.
func (s *Service) Progress(ctx context.Context, req ProgressRequest) (Result, error) {
	const op = "tasks.progress"
	if err := validateIDs(op, req.PlayerID, req.TaskID); err != nil {
		return Result{}, err
	}
	if req.Delta <= 0 {
		return Result{}, errs.Newf(op, errs.ErrValidation, "progress delta must be positive")
	}
	if req.Target <= 0 {
		req.Target = 1
	}
	var res Result
	err := s.store.InTaskTx(ctx, []string{req.PlayerID}, func(tx Tx) error {
		if _, err := tx.Player(req.PlayerID); err != nil {
			return err
		}
		tp, err := s.load(tx, req.PlayerID, req.TaskID, req.Type, req.Target, req.RewardPoints)
		if err != nil {
			return err
		}
		if tp.Completed {
			res.Progress = tp
			return nil
		}
		if tp.Metadata, err = MergeMetadata(tp.Metadata, req.Metadata); err != nil {
			return err
		}
		res, err = s.advance(tx, tp, req.Delta)
		return err
	})
	if err != nil {
		return Result{}, errs.Wrap(op, err)
	}
	return res, nil
}

// load returns existing progress or a fresh record for the task.
func (s *Service) load(tx Tx, playerID, taskID string, typ model.TaskType, target int, reward int64) (*model.TaskProgress, error) {
	tp, ok, err := tx.TaskProgress(playerID, taskID)
	if err != nil {
		return nil, err
	}
	if ok {
		return tp, nil
	}
	if typ == "" {
		typ = model.TaskCustom
	}
	if !typ.Valid() {
		return nil, errs.Newf("tasks.load", errs.ErrValidation, "unknown task type %q", typ)
	}
	return &model.TaskProgress{
		PlayerID:     playerID,
		TaskID:       taskID,
		TaskType:     typ,
		Target:       target,
		RewardPoints: reward,
		Metadata:     model.TaskMetadata{Kind: typ},
	}, nil
}

func (s *Service) advance(tx Tx, tp *model.TaskProgress, delta int) (Result, error) {
	tp.Progress += delta
	if tp.Progress < tp.Target {
		return Result{Progress: tp}, tx.SaveTaskProgress(tp)
	}
	credited, err := s.finish(tx, tp)
	return Result{Progress: tp, Credited: credited}, err
}

// finish marks tp completed and pays its reward.
func (s *Service) finish(tx Tx, tp *model.TaskProgress) (bool, error) {
	now := s.now()
	tp.Completed = true
	tp.CompletedAt = &now
	if err := tx.SaveTaskProgress(tp); err != nil {
		return false, err
	}
	if tp.RewardPoints > 0 {
		if err := tx.AddCoins(tp.PlayerID, tp.RewardPoints); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ApplyReferral links playerID to the owner of code, pays the referrer the
// referral bonus and advances the referrer's refer task.
func (s *Service) ApplyReferral(ctx context.Context, playerID, code string) (*model.Player, error) {
	const op = "tasks.apply_referral"
	code = strings.TrimSpace(code)
	if playerID == "" || code == "" {
		return nil, errs.Newf(op, errs.ErrValidation, "player id and referral code are required")
	}
	var referrer *model.Player
	err := s.store.InTaskTx(ctx, []string{playerID}, func(tx Tx) error {
		p, err := tx.Player(playerID)
		if err != nil {
			return err
		}
		ref, err := tx.PlayerByReferralCode(code)
		if err != nil {
			return err
		}
		if ref.ID == p.ID {
			return errs.Newf(op, errs.ErrValidation, "players cannot refer themselves")
		}
		if p.ReferredBy != "" {
			return errs.Newf(op, errs.ErrStateConflict, "player %s was already referred", p.ID)
		}
		if err := tx.LinkReferral(p.ID, ref.ID); err != nil {
			return err
		}
		if s.referralBonus > 0 {
			if err := tx.AddCoins(ref.ID, s.referralBonus); err != nil {
				return err
			}
			if err := tx.AddReferralEarnings(ref.ID, s.referralBonus); err != nil {
				return err
			}
		}
		tp, err := s.load(tx, ref.ID, s.referTaskID, model.TaskRefer, s.referTarget, s.referTaskPrize)
		if err != nil {
			return err
		}
		if !tp.Completed {
			meta := deref(tp.Metadata.Refer)
			meta.Referrals++
			tp.Metadata.Kind = model.TaskRefer
			tp.Metadata.Refer = &meta
			if _, err := s.advance(tx, tp, 1); err != nil {
				return err
			}
		}
		referrer = ref
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	s.log.Info(ctx, "referral applied",
		logger.PlayerID(playerID),
		logger.String("referrer_id", referrer.ID),
		logger.Int64("bonus", s.referralBonus))
	return referrer, nil
}
