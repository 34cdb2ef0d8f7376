package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/chat"
	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
	"groupchat-service/internal/models"
)

// GroupHandler exposes groups, membership, messages and receipts over REST.
// Mutations go through the same services as the socket, so connected
// clients see the same events either way.
type GroupHandler struct {
	svc      *chat.Services
	presence *hub.Tracker
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(svc *chat.Services, presence *hub.Tracker) *GroupHandler {
	return &GroupHandler{svc: svc, presence: presence}
}

// Register wires the handler's routes onto rg.
func (h *GroupHandler) Register(rg gin.IRoutes) {
	rg.POST("/groups", h.CreateGroup)
	rg.GET("/groups", h.ListGroups)
	rg.GET("/groups/:group_id/members", h.ListMembers)
	rg.POST("/groups/:group_id/members", h.AddMember)
	rg.DELETE("/groups/:group_id/members/:user_id", h.RemoveMember)
	rg.POST("/groups/:group_id/leave", h.LeaveGroup)
	rg.GET("/groups/:group_id/messages", h.GetGroupMessages)
	rg.POST("/groups/:group_id/messages", h.PostGroupMessage)
	rg.POST("/groups/:group_id/messages/:message_id/seen", h.MarkSeen)
	rg.GET("/groups/:group_id/seen", h.LastSeen)
	rg.GET("/presence", h.Presence)
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, members, err := h.svc.Rooms.CreateGroup(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group_id": group.ID, "group": group, "members": members})
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.svc.Rooms.ListGroups(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	members, err := h.svc.Rooms.Members(c.Request.Context(), groupID, c.GetInt("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AddMember handles POST /groups/:group_id/members. Creator only.
func (h *GroupHandler) AddMember(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.svc.Rooms.AddMember(c.Request.Context(), c.GetInt("userID"), groupID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": member})
}

// RemoveMember handles DELETE /groups/:group_id/members/:user_id. Creator only.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	result, err := h.svc.Rooms.RemoveMember(c.Request.Context(), c.GetInt("userID"), groupID, targetID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// LeaveGroup handles POST /groups/:group_id/leave.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	var req struct {
		UserName string `json:"user_name"`
		LastName string `json:"last_name"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.svc.Rooms.Leave(c.Request.Context(), c.GetInt("userID"), groupID, req.UserName, req.LastName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// GetGroupMessages returns the history in sequence order with the seen-by
// labels for each message.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	afterSeq, err := strconv.ParseInt(c.DefaultQuery("after_seq", "0"), 10, 64)
	if err != nil || afterSeq < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_seq"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.svc.Messages.History(c.Request.Context(), groupID, userID, afterSeq, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	lastSeen, err := h.svc.Receipts.LastSeenPerUser(c.Request.Context(), groupID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "seen_by": chat.SeenLabels(msgs, lastSeen)})
}

// PostGroupMessage persists and broadcasts a group message.
func (h *GroupHandler) PostGroupMessage(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Messages.Submit(c.Request.Context(), groupID, c.GetInt("userID"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *GroupHandler) MarkSeen(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	fresh, err := h.svc.Receipts.MarkSeen(c.Request.Context(), c.GetInt("userID"), messageID, groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fresh": fresh})
}

func (h *GroupHandler) LastSeen(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	rows, err := h.svc.Receipts.LastSeenPerUser(c.Request.Context(), groupID, c.GetInt("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_seen": rows})
}

// Presence returns the online snapshot.
func (h *GroupHandler) Presence(c *gin.Context) {
	users := map[int]bool{}
	if h.presence != nil {
		users = h.presence.Snapshot()
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, chat.ErrNotAMember), errors.Is(err, chat.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, chat.ErrAlreadyMember):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, chat.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case chat.IsBadInput(err):
		status, message = http.StatusBadRequest, err.Error()
	default:
		logging.Ctx(c.Request.Context()).Error().Err(err).Str(logging.FieldPath, c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": message})
}
