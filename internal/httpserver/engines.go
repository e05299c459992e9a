package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/symposium/internal/model"
)

func (s *Server) handleBoardSnapshot(c *gin.Context) {
	snap, err := s.deps.Board.BoardSnapshot()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// boardCommand runs a parameterless board method and answers with the new state.
func (s *Server) boardCommand(cmd func(model.BoardController) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cmd(s.deps.Board); err != nil {
			abortWithError(c, err)
			return
		}
		s.handleBoardSnapshot(c)
	}
}

func (s *Server) handleBoardSettings(c *gin.Context) {
	var req model.BoardSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := s.deps.Board.BoardConfigure(req); err != nil {
		abortWithError(c, err)
		return
	}
	s.handleBoardSnapshot(c)
}

func (s *Server) handleGameSnapshot(c *gin.Context) {
	snap, err := s.deps.Game.GameSnapshot()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) gameCommand(cmd func(model.GameController) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cmd(s.deps.Game); err != nil {
			abortWithError(c, err)
			return
		}
		s.handleGameSnapshot(c)
	}
}

func (s *Server) handleGameSelect(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing index field"})
		return
	}
	if err := s.deps.Game.GameSelect(*req.Index); err != nil {
		abortWithError(c, err)
		return
	}
	s.handleGameSnapshot(c)
}

func (s *Server) handleGameAction(c *gin.Context) {
	action, err := model.ParseAction(c.Param("action"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Game.GameAction(action); err != nil {
		abortWithError(c, err)
		return
	}
	s.handleGameSnapshot(c)
}
