package models

import "time"

// BotStatus is the lifecycle state of a registered bot identity.
// Transitions are driven by the approval workflow through storage;
// the session layer only reads the status captured at start time.
type BotStatus string

const (
	StatusPending      BotStatus = "pending"
	StatusApproved     BotStatus = "approved"
	StatusDisconnected BotStatus = "disconnected"
	StatusBanned       BotStatus = "banned"
)

func (s BotStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDisconnected, StatusBanned:
		return true
	}
	return false
}

// Bot is one registered bot identity: its credential, the channel its
// files live in, and the content tree it serves.
type Bot struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ChannelID int64     `json:"channel_id"`
	OwnerID   int64     `json:"owner_id,omitempty"`
	Status    BotStatus `json:"status"`
	Tree      *Folder   `json:"tree,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
