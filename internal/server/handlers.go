package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neo/arbiter_backend/internal/catalog"
	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/export"
	"github.com/neo/arbiter_backend/internal/logging"
	"github.com/neo/arbiter_backend/internal/types"
)

func (s *Server) createDebate(c *gin.Context) {
	var config debate.DebateConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	state, err := s.manager.CreateDebate(config)
	if err != nil {
		if debate.IsInvalidConfig(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logging.Error("Failed to create debate", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create debate"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"debate": state})
}

func (s *Server) listDebates(c *gin.Context) {
	debates := s.manager.ListDebates()
	c.JSON(http.StatusOK, gin.H{
		"debates": debates,
		"count":   len(debates),
	})
}

func (s *Server) getDebate(c *gin.Context) {
	state, err := s.manager.GetDebate(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"debate": state})
}

func (s *Server) getDebateStatus(c *gin.Context) {
	state, err := s.manager.GetDebate(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"debate_id":     state.DebateID,
		"status":        state.Status,
		"current_round": state.CurrentRound,
		"current_turn":  state.CurrentTurn,
		"total_rounds":  state.Config.NumRounds,
		"message_count": len(state.History),
		"error_message": state.ErrorMessage,
	})
}

func (s *Server) startDebate(c *gin.Context) {
	state, err := s.manager.StartDebate(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"debate": state})
}

func (s *Server) exportDebate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	exportFormat, err := types.ParseExportFormat(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format: %s", format)})
		return
	}

	state, err := s.manager.GetDebate(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	result, err := export.Export(state, exportFormat)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func (s *Server) deleteDebate(c *gin.Context) {
	if err := s.manager.DeleteDebate(c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": catalog.Providers()})
}

func (s *Server) listPersonas(c *gin.Context) {
	personas := catalog.Personas()
	c.JSON(http.StatusOK, gin.H{
		"personas": personas,
		"total":    len(personas),
	})
}

// renderError maps engine errors onto HTTP statuses
func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, debate.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "debate not found"})
	case errors.Is(err, debate.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, debate.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case debate.IsInvalidConfig(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logging.Error("Unhandled request error", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
