package model

import "time"

// TaskType selects the metadata variant carried by task progress.
type TaskType string

const (
	TaskQuiz         TaskType = "quiz"
	TaskRefer        TaskType = "refer"
	TaskJoinDiscord  TaskType = "join-discord"
	TaskWatchAndEarn TaskType = "watch_and_earn"
	TaskCommunity    TaskType = "community"
	TaskCustom       TaskType = "custom"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskQuiz, TaskRefer, TaskJoinDiscord, TaskWatchAndEarn, TaskCommunity, TaskCustom:
		return true
	}
	return false
}

// QuizMeta is the quiz task variant.
type QuizMeta struct {
	Score    int `json:"score,omitempty"`
	Answered int `json:"answered,omitempty"`
}

// ReferMeta is the referral task variant.
type ReferMeta struct {
	Referrals int `json:"referrals,omitempty"`
}

// DiscordMeta is the join-discord task variant.
type DiscordMeta struct {
	Handle string `json:"handle,omitempty"`
}

// WatchMeta is the watch_and_earn task variant.
type WatchMeta struct {
	Seconds int `json:"seconds,omitempty"`
}

// CustomMeta is the custom task variant.
type CustomMeta struct {
	Note string `json:"note,omitempty"`
}

// TaskMetadata is a tagged union keyed by Kind. Exactly the variant matching
// Kind may be set; community tasks carry no data.
type TaskMetadata struct {
	Kind    TaskType     `json:"kind"`
	Quiz    *QuizMeta    `json:"quiz,omitempty"`
	Refer   *ReferMeta   `json:"refer,omitempty"`
	Discord *DiscordMeta `json:"discord,omitempty"`
	Watch   *WatchMeta   `json:"watch,omitempty"`
	Custom  *CustomMeta  `json:"custom,omitempty"`
}

// TaskProgress tracks one player's progress on one task.
type TaskProgress struct {
	PlayerID     string       `gorm:"primaryKey;type:varchar(64)" json:"player_id"`
	TaskID       string       `gorm:"primaryKey;type:varchar(64)" json:"task_id"`
	TaskType     TaskType     `gorm:"type:varchar(32);not null" json:"task_type"`
	Progress     int          `gorm:"not null;default:0" json:"progress"`
	Target       int          `gorm:"not null" json:"target"`
	Completed    bool         `gorm:"not null;default:false" json:"completed"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	RewardPoints int64        `json:"reward_points"`
	Metadata     TaskMetadata `gorm:"serializer:json" json:"metadata"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}
