package model

import "time"

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultUpdateInterval   = 250 * time.Millisecond
	DefaultSkin             = "default"
	DefaultBoardSize        = 5
	DefaultGameSize         = 5
	MaxPhilosophers         = 64
	DefaultRecentRunsLimit  = 50
	DefaultRunEventsLimit   = 1000
	DefaultNoticeBufferSize = 8
)
