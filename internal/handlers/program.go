package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orionsky/obsdb-backend/internal/services"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type ProgramHandler struct {
	programs services.ProgramService
	tree     services.GroupTreeService
}

func NewProgramHandler(programs services.ProgramService, tree services.GroupTreeService) *ProgramHandler {
	return &ProgramHandler{programs: programs, tree: tree}
}

type createProgramRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *ProgramHandler) Create(c *gin.Context) {
	var req createProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	program, err := h.programs.CreateProgram(c.Request.Context(), &types.Program{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		RespondMapped(c, err)
		return
	}
	c.JSON(http.StatusCreated, program)
}

func (h *ProgramHandler) Get(c *gin.Context) {
	programID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	program, err := h.programs.GetProgram(c.Request.Context(), programID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, program)
}

// Verify re-checks the structural invariants of a whole program on demand.
func (h *ProgramHandler) Verify(c *gin.Context) {
	programID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.tree.VerifyProgram(c.Request.Context(), nil, programID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "ok"})
}
