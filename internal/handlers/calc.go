package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/services"
)

type CalcHandler struct {
	obscalc services.ObscalcService
	blind   services.BlindOffsetService
}

func NewCalcHandler(obscalc services.ObscalcService, blind services.BlindOffsetService) *CalcHandler {
	return &CalcHandler{obscalc: obscalc, blind: blind}
}

func (h *CalcHandler) GetObscalc(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	entry, err := h.obscalc.Get(c.Request.Context(), obsID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	if entry == nil {
		RespondMapped(c, apperr.NotFoundError("no obscalc entry for observation "+obsID.String()))
		return
	}
	RespondOK(c, entry)
}

func (h *CalcHandler) ListObscalcByProgram(c *gin.Context) {
	programID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	entries, err := h.obscalc.ListByProgram(c.Request.Context(), programID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"entries": entries})
}

// Invalidate forces a recomputation regardless of what changed. Useful when
// the calculator itself was upgraded.
func (h *CalcHandler) Invalidate(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.obscalc.Invalidate(c.Request.Context(), nil, obsID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "invalidated"})
}

func (h *CalcHandler) GetBlindOffset(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	entry, err := h.blind.Get(c.Request.Context(), obsID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	if entry == nil {
		RespondMapped(c, apperr.NotFoundError("no blind-offset entry for observation "+obsID.String()))
		return
	}
	RespondOK(c, entry)
}

func (h *CalcHandler) InvalidateBlindOffset(c *gin.Context) {
	obsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.blind.Invalidate(c.Request.Context(), nil, obsID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "invalidated"})
}
