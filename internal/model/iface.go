package model

// BoardController drives the status board.
type BoardController interface {
	BoardSnapshot() (BoardSnapshot, error)
	BoardStart() error
	BoardPause() error
	BoardToggle() error
	BoardReset() error
	BoardConfigure(settings BoardSettings) error
}

// GameController drives the interactive game.
type GameController interface {
	GameSnapshot() (GameSnapshot, error)
	GameStart() error
	GamePause() error
	GameResume() error
	GameReset() error
	GameSelect(index int) error
	GameDeselect() error
	GameAction(action Action) error
}

// RunQuerier provides read-only queries over recorded simulator runs.
type RunQuerier interface {
	ListRuns(limit int) ([]RunSummary, error)
	GetRun(id string) (RunSummary, error)
	RunEvents(id string, limit int) ([]Event, error)
	MealCounts(id string) ([]MealCount, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// EventWriter provides append-oriented writes for simulator events.
type EventWriter interface {
	InsertEventBatch(events []*Event) error
}

// RunWriter persists run lifecycle rows.
type RunWriter interface {
	CreateRun(run RunSummary) error
	FinishRun(run RunSummary) error
}

// ReadAPI is the unified read contract for read surfaces (HTTP and socket RPC).
type ReadAPI interface {
	RunQuerier
	SchemaQuerier
}

// RunLauncher starts simulator runs in the background.
type RunLauncher interface {
	Launch(cfg RunConfig) (RunSummary, error)
}
