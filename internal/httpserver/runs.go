package httpserver

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/symposium/internal/model"
)

func (s *Server) requireRuns(c *gin.Context) {
	if s.deps.Runs == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "run recording is disabled"})
		return
	}
	c.Next()
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	runs, err := s.deps.Runs.ListRuns(limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// launchRequest takes durations in milliseconds, as the philo CLI does.
type launchRequest struct {
	Philosophers int `json:"philosophers"`
	TimeToDie    int `json:"time_to_die"`
	TimeToEat    int `json:"time_to_eat"`
	TimeToSleep  int `json:"time_to_sleep"`
	MustEat      int `json:"must_eat"`
}

func (r launchRequest) config() model.RunConfig {
	return model.RunConfig{
		Philosophers: r.Philosophers,
		TimeToDie:    time.Duration(r.TimeToDie) * time.Millisecond,
		TimeToEat:    time.Duration(r.TimeToEat) * time.Millisecond,
		TimeToSleep:  time.Duration(r.TimeToSleep) * time.Millisecond,
		MustEat:      r.MustEat,
	}
}

func (s *Server) handleLaunchRun(c *gin.Context) {
	if s.deps.Launcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run launching is disabled"})
		return
	}
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	run, err := s.deps.Launcher.Launch(req.config())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.deps.Runs.GetRun(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleRunEvents(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := s.deps.Runs.GetRun(id); err != nil {
		abortWithError(c, err)
		return
	}
	events, err := s.deps.Runs.RunEvents(id, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "events": events, "count": len(events)})
}

func (s *Server) handleRunMeals(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Runs.GetRun(id); err != nil {
		abortWithError(c, err)
		return
	}
	meals, err := s.deps.Runs.MealCounts(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if meals == nil {
		meals = []model.MealCount{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "meals": meals})
}

func (s *Server) handleSchema(c *gin.Context) {
	tables, err := s.deps.Runs.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		name := fmt.Sprintf("%v", row["table_name"])
		schema[name] = append(schema[name], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.deps.Runs.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.deps.Runs.GetSchemaDescription(),
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.deps.Runs.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columns := []string{}
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
		sort.Strings(columns)
	}
	if results == nil {
		results = []map[string]interface{}{}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
