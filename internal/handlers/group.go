package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orionsky/obsdb-backend/internal/services"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type GroupHandler struct {
	tree services.GroupTreeService
}

func NewGroupHandler(tree services.GroupTreeService) *GroupHandler {
	return &GroupHandler{tree: tree}
}

type insertGroupRequest struct {
	ProgramID   uuid.UUID  `json:"program_id" binding:"required"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	MinRequired *int16     `json:"min_required"`
	Ordered     bool       `json:"ordered"`
	MinInterval *int64     `json:"min_interval_us"`
	MaxInterval *int64     `json:"max_interval_us"`
	At          *int16     `json:"at"`
}

func (h *GroupHandler) Insert(c *gin.Context) {
	var req insertGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	group := &types.Group{
		ProgramID:   req.ProgramID,
		ParentID:    req.ParentID,
		Name:        req.Name,
		Description: req.Description,
		MinRequired: req.MinRequired,
		Ordered:     req.Ordered,
		MinInterval: req.MinInterval,
		MaxInterval: req.MaxInterval,
	}
	created, err := h.tree.InsertGroup(c.Request.Context(), group, req.At)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type moveGroupRequest struct {
	DestParentID *uuid.UUID `json:"dest_parent_id"`
	DestIndex    *int16     `json:"dest_index"`
}

func (h *GroupHandler) Move(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var req moveGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.tree.MoveGroup(c.Request.Context(), groupID, req.DestParentID, req.DestIndex); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "moved"})
}

func (h *GroupHandler) Delete(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.tree.DeleteGroup(c.Request.Context(), groupID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "deleted"})
}

// ListChildren returns one sibling bucket in index order. With no parent_id
// query parameter it returns the program's top-level bucket.
func (h *GroupHandler) ListChildren(c *gin.Context) {
	programID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var parentID *uuid.UUID
	if raw := c.Query("parent_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "validation", err)
			return
		}
		parentID = &parsed
	}
	children, err := h.tree.ListChildren(c.Request.Context(), programID, parentID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"children": children})
}
