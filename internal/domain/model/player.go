// Package model contains domain models passed between layers.
package model

import "time"

// Player defaults applied on first contact.
const (
	DefaultMaxEnergy        = 100
	DefaultEnergyRegenRate  = 1.0
	DefaultLevel            = 1
	DefaultExperienceNeeded = 100
)

// Starter avatar stats granted to a player on first contact.
const (
	StarterPower   = 10
	StarterDefense = 5
	StarterSpeed   = 5
	StarterHealth  = 100
)

// Player is the persistent identity and progression record.
// ID is the stable external id supplied by the client.
type Player struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Username         string    `gorm:"index" json:"username"`
	Coins            int64     `gorm:"not null;default:0" json:"coins"`
	Energy           int       `gorm:"not null" json:"energy"`
	MaxEnergy        int       `gorm:"not null" json:"max_energy"`
	EnergyRegenRate  float64   `gorm:"not null" json:"energy_regen_rate"`
	LastEnergyUpdate time.Time `gorm:"not null" json:"last_energy_update"`
	Level            int       `gorm:"not null;default:1" json:"level"`
	SkillPoints      int       `gorm:"not null;default:0" json:"skill_points"`
	ActiveAvatarID   string    `gorm:"type:varchar(64)" json:"active_avatar_id,omitempty"`
	Avatars          []Avatar  `gorm:"foreignKey:PlayerID" json:"avatars,omitempty"`
	ReferralCode     string    `gorm:"uniqueIndex;type:varchar(32)" json:"referral_code"`
	ReferredBy       string    `gorm:"type:varchar(64)" json:"referred_by,omitempty"`
	ReferralEarnings int64     `gorm:"not null;default:0" json:"referral_earnings"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveAvatar returns the selected avatar when it is one of the player's own.
func (p *Player) ActiveAvatar() (*Avatar, bool) {
	if p == nil || p.ActiveAvatarID == "" {
		return nil, false
	}
	for i := range p.Avatars {
		if p.Avatars[i].ID == p.ActiveAvatarID {
			return &p.Avatars[i], true
		}
	}
	return nil, false
}

// Owns reports whether avatarID belongs to the player.
func (p *Player) Owns(avatarID string) bool {
	for i := range p.Avatars {
		if p.Avatars[i].ID == avatarID {
			return true
		}
	}
	return false
}

// Avatar is an owned combat character instance.
type Avatar struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PlayerID         string    `gorm:"index;not null;type:varchar(64)" json:"player_id"`
	Name             string    `json:"name"`
	Power            int       `json:"power"`
	Defense          int       `json:"defense"`
	Speed            int       `json:"speed"`
	Health           int       `json:"health"`
	Experience       int       `json:"experience"`
	ExperienceNeeded int       `json:"experience_needed"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Stats snapshots the avatar as fresh battle stats.
func (a Avatar) Stats() ParticipantStats {
	return ParticipantStats{
		InitialHealth: a.Health,
		CurrentHealth: a.Health,
		Power:         a.Power,
		Defense:       a.Defense,
		Speed:         a.Speed,
	}
}
