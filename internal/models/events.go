package models

// Client -> server events.
const (
	EventUserConnected         = "userConnected"
	EventJoinRoom              = "joinRoom"
	EventLeaveRoom             = "leaveRoom"
	EventSendMessage           = "sendMessage"
	EventTyping                = "typing"
	EventStoppedTyping         = "stoppedTyping"
	EventMessageRead           = "messageRead"
	EventRemoveMemberFromGroup = "removeMemberFromGroup"
	EventLeaveGroup            = "leaveGroup"
)

// Server -> client events.
const (
	EventNewMessage        = "newMessage"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserOnlineStatus  = "userOnlineStatus"
	EventOnlineUsersList   = "onlineUsersList"
	EventMessageSeenUpdate = "messageSeenUpdate"
	EventMemberLeft        = "memberLeft"
	EventMembersAdded      = "membersAdded"
	EventRemovedFromGroup  = "removedFromGroup"
	EventError             = "error"
)

// Error codes carried by EventError.
const (
	ErrCodeNotAMember    = "NOT_A_MEMBER"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeAlreadyMember = "ALREADY_MEMBER"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotConnected  = "NOT_CONNECTED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

type UserConnectedPayload struct {
	UserID int `json:"userId"`
}

type SendMessagePayload struct {
	GroupID int    `json:"groupId"`
	Text    string `json:"text"`
	UserID  int    `json:"userId"`
}

type TypingPayload struct {
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
	GroupID  int    `json:"groupId"`
}

type MessageReadPayload struct {
	MessageID int `json:"messageId"`
	UserID    int `json:"userId"`
	GroupID   int `json:"groupId"`
}

type RemoveMemberPayload struct {
	GroupID          int `json:"groupId"`
	AdminUserID      int `json:"adminUserId"`
	MemberToRemoveID int `json:"memberToRemoveId"`
}

type LeaveGroupPayload struct {
	GroupID  int    `json:"groupId"`
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
	LastName string `json:"lastName"`
}

type OnlineStatusPayload struct {
	UserID   int  `json:"userId"`
	IsOnline bool `json:"isOnline"`
}

type OnlineUsersPayload struct {
	Users map[int]bool `json:"users"`
}

type MessageSeenPayload struct {
	MessageID int   `json:"messageId"`
	GroupID   int   `json:"groupId"`
	SeenBy    []int `json:"seenBy"`
}

type MemberLeftPayload struct {
	GroupID      int    `json:"groupId"`
	UserID       int    `json:"userId"`
	UserName     string `json:"userName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	NewCreatorID int    `json:"newCreatorId,omitempty"`
}

type MembersAddedPayload struct {
	GroupID int   `json:"groupId"`
	UserIDs []int `json:"userIds"`
}

type RemovedFromGroupPayload struct {
	GroupID int    `json:"groupId"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
