// Package httpserver exposes the board, the game and the recorded simulator
// runs as a JSON API.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/symposium/internal/model"
)

// DefaultAddr is used when NewServer gets an empty address.
const DefaultAddr = "0.0.0.0:3000"

// Deps groups what the API serves. Runs and Launcher may be nil when
// recording is disabled; their routes then answer 503.
type Deps struct {
	Board    model.BoardController
	Game     model.GameController
	Runs     model.ReadAPI
	Launcher model.RunLauncher
}

// Server is the symposium HTTP API.
type Server struct {
	addr      string
	deps      Deps
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, deps Deps) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)

	b := api.Group("/board")
	b.GET("", s.handleBoardSnapshot)
	b.POST("/start", s.boardCommand(model.BoardController.BoardStart))
	b.POST("/pause", s.boardCommand(model.BoardController.BoardPause))
	b.POST("/toggle", s.boardCommand(model.BoardController.BoardToggle))
	b.POST("/reset", s.boardCommand(model.BoardController.BoardReset))
	b.PUT("/settings", s.handleBoardSettings)

	g := api.Group("/game")
	g.GET("", s.handleGameSnapshot)
	g.POST("/start", s.gameCommand(model.GameController.GameStart))
	g.POST("/pause", s.gameCommand(model.GameController.GamePause))
	g.POST("/resume", s.gameCommand(model.GameController.GameResume))
	g.POST("/reset", s.gameCommand(model.GameController.GameReset))
	g.POST("/select", s.handleGameSelect)
	g.DELETE("/select", s.gameCommand(model.GameController.GameDeselect))
	g.POST("/actions/:action", s.handleGameAction)

	runs := api.Group("/runs", s.requireRuns)
	runs.GET("", s.handleListRuns)
	runs.POST("", s.handleLaunchRun)
	runs.GET("/:id", s.handleGetRun)
	runs.GET("/:id/events", s.handleRunEvents)
	runs.GET("/:id/meals", s.handleRunMeals)

	api.GET("/schema", s.requireRuns, s.handleSchema)
	api.POST("/query", s.requireRuns, s.handleQuery)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// statusFor maps an error category onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRejected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if s.deps.Runs != nil {
		counts, err := s.deps.Runs.TableRowCounts()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
			return
		}
		body["runs"] = counts["runs"]
		body["events"] = counts["events"]
	}
	c.JSON(http.StatusOK, body)
}
