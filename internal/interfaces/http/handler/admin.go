package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rpgsheets/backend/internal/application/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
)

// AdminHandler exposes maintenance operations
type AdminHandler struct {
	BaseHandler
	cleanup *generation.CleanupService
	clock   shared.Clock
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(cleanup *generation.CleanupService, clock shared.Clock) *AdminHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &AdminHandler{cleanup: cleanup, clock: clock}
}

// Sweep runs one retention pass immediately. POST /admin/generation/sweep
func (h *AdminHandler) Sweep(c *gin.Context) {
	now := h.clock.Now()
	removed, err := h.cleanup.Sweep(c.Request.Context(), now)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, generation.SweepResponse{Removed: removed, At: now})
}
