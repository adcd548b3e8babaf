package observability

import "go.uber.org/zap"

// Field aliases so adapters can attach structured fields without
// importing zap directly.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Error   = zap.Error
)
