package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/orionsky/obsdb-backend/internal/services"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type ObservationHandler struct {
	tree  services.GroupTreeService
	edits services.ObservationEditService
}

func NewObservationHandler(tree services.GroupTreeService, edits services.ObservationEditService) *ObservationHandler {
	return &ObservationHandler{tree: tree, edits: edits}
}

type insertObservationRequest struct {
	ProgramID           uuid.UUID      `json:"program_id" binding:"required"`
	GroupID             *uuid.UUID     `json:"group_id"`
	Title               string         `json:"title"`
	Subtitle            string         `json:"subtitle"`
	Instrument          *string        `json:"instrument"`
	ScienceBand         *string        `json:"science_band"`
	ExposureTimeMode    datatypes.JSON `json:"exposure_time_mode"`
	ScienceRequirements datatypes.JSON `json:"science_requirements"`
	At                  *int16         `json:"at"`
}

func (h *ObservationHandler) Insert(c *gin.Context) {
	var req insertObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	obs := &types.Observation{
		ProgramID:           req.ProgramID,
		GroupID:             req.GroupID,
		Title:               req.Title,
		Subtitle:            req.Subtitle,
		Instrument:          req.Instrument,
		ScienceBand:         req.ScienceBand,
		ExposureTimeMode:    req.ExposureTimeMode,
		ScienceRequirements: req.ScienceRequirements,
	}
	created, err := h.tree.InsertObservation(c.Request.Context(), obs, req.At)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type moveObservationRequest struct {
	DestGroupID *uuid.UUID `json:"dest_group_id"`
	DestIndex   *int16     `json:"dest_index"`
}

func (h *ObservationHandler) Move(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var req moveObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.tree.MoveObservation(c.Request.Context(), obsID, req.DestGroupID, req.DestIndex); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "moved"})
}

func (h *ObservationHandler) Delete(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.tree.DeleteObservation(c.Request.Context(), obsID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "deleted"})
}

func (h *ObservationHandler) Get(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	obs, err := h.edits.GetObservation(c.Request.Context(), obsID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, obs)
}

// Update accepts a column->value map; structural columns are rejected by the
// service layer.
func (h *ObservationHandler) Update(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.edits.UpdateObservation(c.Request.Context(), obsID, updates); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "updated"})
}

type gmosLongSlitRequest struct {
	Grating           string `json:"grating" binding:"required"`
	Filter            *string `json:"filter"`
	Fpu               string `json:"fpu" binding:"required"`
	CentralWavelength int64  `json:"central_wavelength_pm" binding:"required"`
	XBin              *int16 `json:"x_bin"`
	YBin              *int16 `json:"y_bin"`
}

func (h *ObservationHandler) SetGmosLongSlit(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var req gmosLongSlitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	mode := &types.GmosLongSlit{
		ObservationID:     obsID,
		Grating:           req.Grating,
		Filter:            req.Filter,
		Fpu:               req.Fpu,
		CentralWavelength: req.CentralWavelength,
	}
	if req.XBin != nil {
		mode.XBin = *req.XBin
	}
	if req.YBin != nil {
		mode.YBin = *req.YBin
	}
	if err := h.edits.SetGmosLongSlit(c.Request.Context(), mode); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "updated"})
}

func (h *ObservationHandler) UpdateGmosLongSlit(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.edits.UpdateGmosLongSlit(c.Request.Context(), obsID, updates); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "updated"})
}

type asterismRequest struct {
	TargetID uuid.UUID `json:"target_id" binding:"required"`
}

func (h *ObservationHandler) AddAsterismTarget(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	var req asterismRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.edits.AddAsterismTarget(c.Request.Context(), obsID, req.TargetID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "added"})
}

func (h *ObservationHandler) RemoveAsterismTarget(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	targetID, err := uuid.Parse(c.Param("targetId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.edits.RemoveAsterismTarget(c.Request.Context(), obsID, targetID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "removed"})
}

func (h *ObservationHandler) ListAsterism(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	targets, err := h.edits.ListAsterism(c.Request.Context(), obsID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"targets": targets})
}
