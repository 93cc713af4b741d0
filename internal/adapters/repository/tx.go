package repository

import (
	"errors"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormTx implements battle.Tx and tasks.Tx on one gorm transaction.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Player(id string) (*model.Player, error) {
	return loadPlayer(t.db, id)
}

func (t *gormTx) SetEnergy(p *model.Player) error {
	err := t.db.Model(&model.Player{}).Where("id = ?", p.ID).Updates(map[string]any{
		"energy":             p.Energy,
		"last_energy_update": p.LastEnergyUpdate.UTC(),
	}).Error
	return classify("repository.set_energy", err)
}

func (t *gormTx) ActiveBattle(playerID string) (string, bool, error) {
	var ids []string
	err := t.db.Model(&model.Battle{}).
		Where("status = ? AND (player_id = ? OR opponent_id = ?)", model.StatusInProgress, playerID, playerID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return "", false, classify("repository.active_battle", err)
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

func (t *gormTx) CreateBattle(b *model.Battle) error {
	return classify("repository.create_battle", t.db.Create(b).Error)
}

func (t *gormTx) FinishBattle(b *model.Battle) error {
	const op = "repository.finish_battle"
	res := t.db.Model(&model.Battle{}).
		Where("id = ? AND status = ?", b.ID, model.StatusInProgress).
		Select("*").
		Omit("id", "created_at").
		Updates(b)
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Newf(op, errs.ErrStateConflict, "battle %s is not in progress", b.ID)
	}
	return nil
}

func (t *gormTx) Reward(p *model.Player, avatar *model.Avatar, coins int64) error {
	const op = "repository.reward"
	err := t.db.Model(&model.Player{}).Where("id = ?", p.ID).Updates(map[string]any{
		"coins":        gorm.Expr("coins + ?", coins),
		"level":        p.Level,
		"skill_points": p.SkillPoints,
	}).Error
	if err != nil {
		return classify(op, err)
	}
	if avatar == nil {
		return nil
	}
	err = t.db.Model(&model.Avatar{}).Where("id = ? AND player_id = ?", avatar.ID, p.ID).Updates(map[string]any{
		"experience":        avatar.Experience,
		"experience_needed": avatar.ExperienceNeeded,
	}).Error
	return classify(op, err)
}

func (t *gormTx) PlayerByReferralCode(code string) (*model.Player, error) {
	var p model.Player
	if err := t.db.First(&p, "referral_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf("repository.referral", errs.ErrNotFound, "referral code %s not found", code)
		}
		return nil, classify("repository.referral", err)
	}
	return &p, nil
}

func (t *gormTx) TaskProgress(playerID, taskID string) (*model.TaskProgress, bool, error) {
	var tp model.TaskProgress
	err := t.db.Where("player_id = ? AND task_id = ?", playerID, taskID).Limit(1).Find(&tp).Error
	if err != nil {
		return nil, false, classify("repository.task_progress", err)
	}
	if tp.PlayerID == "" {
		return nil, false, nil
	}
	return &tp, true, nil
}

func (t *gormTx) SaveTaskProgress(tp *model.TaskProgress) error {
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"progress", "target", "completed", "completed_at", "reward_points", "metadata", "updated_at"}),
	}).Create(tp).Error
	return classify("repository.save_task_progress", err)
}

func (t *gormTx) AddCoins(playerID string, coins int64) error {
	const op = "repository.add_coins"
	res := t.db.Model(&model.Player{}).Where("id = ?", playerID).Update("coins", gorm.Expr("coins + ?", coins))
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Newf(op, errs.ErrNotFound, "player %s not found", playerID)
	}
	return nil
}

func (t *gormTx) LinkReferral(playerID, referrerID string) error {
	const op = "repository.link_referral"
	res := t.db.Model(&model.Player{}).
		Where("id = ? AND (referred_by = '' OR referred_by IS NULL)", playerID).
		Update("referred_by", referrerID)
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Newf(op, errs.ErrStateConflict, "player %s was already referred", playerID)
	}
	return nil
}

func (t *gormTx) AddReferralEarnings(playerID string, amount int64) error {
	err := t.db.Model(&model.Player{}).Where("id = ?", playerID).
		Update("referral_earnings", gorm.Expr("referral_earnings + ?", amount)).Error
	return classify("repository.add_referral_earnings", err)
}
