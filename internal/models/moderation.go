package models

import "time"

// ModerationVerdict is the outcome of a moderation evaluation
type ModerationVerdict string

const (
	VerdictAllowed ModerationVerdict = "allowed"
	VerdictBlocked ModerationVerdict = "blocked"
)

// ModerationMethod names the stage that produced a verdict
type ModerationMethod string

const (
	MethodRuleBased ModerationMethod = "rule_based"
	MethodAIBased   ModerationMethod = "ai_based"
	MethodFallback  ModerationMethod = "fallback"
)

// ModerationLog is the audit record of one moderation evaluation. Only
// AlertSent may change after insert.
type ModerationLog struct {
	ID               uint              `json:"id" gorm:"primaryKey"`
	SenderID         uint              `json:"sender_id" gorm:"index"`
	RecipientID      *uint             `json:"recipient_id,omitempty"`
	RecipientAddress string            `json:"recipient_address,omitempty" gorm:"size:320"`
	Content          string            `json:"content" gorm:"type:text"`
	Verdict          ModerationVerdict `json:"verdict" gorm:"type:varchar(16);index"`
	Method           ModerationMethod  `json:"method" gorm:"type:varchar(16)"`
	Reason           string            `json:"reason,omitempty"`
	AlertSent        bool              `json:"alert_sent" gorm:"not null;default:false"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TableName overrides the table name
func (ModerationLog) TableName() string {
	return "moderation_logs"
}

// BlacklistEntry is one lexicon phrase with its category
type BlacklistEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Phrase    string    `json:"phrase" gorm:"uniqueIndex;size:255;not null"`
	Category  string    `json:"category" gorm:"size:64;not null"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name
func (BlacklistEntry) TableName() string {
	return "blacklist_entries"
}
