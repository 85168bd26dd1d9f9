package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/orionsky/obsdb-backend/internal/services"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type TargetHandler struct {
	edits services.TargetEditService
}

func NewTargetHandler(edits services.TargetEditService) *TargetHandler {
	return &TargetHandler{edits: edits}
}

type createTargetRequest struct {
	ProgramID      uuid.UUID      `json:"program_id" binding:"required"`
	Name           string         `json:"name" binding:"required"`
	RA             int64          `json:"ra_uas"`
	Dec            int64          `json:"dec_uas"`
	Epoch          string         `json:"epoch"`
	PmRA           *int64         `json:"pm_ra_uas_y"`
	PmDec          *int64         `json:"pm_dec_uas_y"`
	RadialVelocity *int64         `json:"rv_m_s"`
	Parallax       *int64         `json:"parallax_uas"`
	SourceProfile  datatypes.JSON `json:"source_profile"`
}

func (h *TargetHandler) Create(c *gin.Context) {
	var req createTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	target := &types.Target{
		ProgramID:      req.ProgramID,
		Name:           req.Name,
		RA:             req.RA,
		Dec:            req.Dec,
		PmRA:           req.PmRA,
		PmDec:          req.PmDec,
		RadialVelocity: req.RadialVelocity,
		Parallax:       req.Parallax,
		SourceProfile:  req.SourceProfile,
	}
	if req.Epoch != "" {
		target.Epoch = req.Epoch
	}
	created, err := h.edits.CreateTarget(c.Request.Context(), target)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *TargetHandler) Get(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	target, err := h.edits.GetTarget(c.Request.Context(), targetID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, target)
}

func (h *TargetHandler) Update(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.edits.UpdateTarget(c.Request.Context(), targetID, updates); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "updated"})
}

func (h *TargetHandler) Delete(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.edits.DeleteTarget(c.Request.Context(), targetID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "deleted"})
}

func (h *TargetHandler) ListByProgram(c *gin.Context) {
	programID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	targets, err := h.edits.ListTargets(c.Request.Context(), programID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"targets": targets})
}
