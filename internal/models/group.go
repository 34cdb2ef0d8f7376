package models

import "time"

// Group represents a chat room with a fixed creator.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatorID int       `db:"creator_id" json:"creatorId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Member is a durable membership row.
type Member struct {
	GroupID  int       `db:"group_id" json:"groupId"`
	UserID   int       `db:"user_id" json:"userId"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

// GroupMessage is an immutable message; Seq orders messages within a group.
type GroupMessage struct {
	ID        int       `db:"id" json:"id"`
	GroupID   int       `db:"group_id" json:"groupId"`
	SenderID  int       `db:"sender_id" json:"userId"`
	Content   string    `db:"content" json:"text"`
	Seq       int64     `db:"seq" json:"sequenceNumber"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// LastSeen is the highest-sequence message a user has seen in a group.
type LastSeen struct {
	UserID    int       `db:"user_id" json:"userId"`
	MessageID int       `db:"message_id" json:"messageId"`
	Seq       int64     `db:"seq" json:"sequenceNumber"`
	SeenAt    time.Time `db:"seen_at" json:"seenAt"`
}

// LeaveResult describes a membership removal.
type LeaveResult struct {
	// NewCreatorID is set when the departing user was the creator and
	// ownership moved to the longest-standing remaining member.
	NewCreatorID int `json:"newCreatorId,omitempty"`
	// Empty reports that no members remain.
	Empty bool `json:"empty"`
}
