package duckdb

import "github.com/tinytelemetry/symposium/internal/model"

var (
	_ model.ReadAPI     = (*Store)(nil)
	_ model.EventWriter = (*Store)(nil)
	_ model.RunWriter   = (*Store)(nil)
)
