package credits

import "errors"

var (
	// ErrUnknownOperation indicates the requested operation key is not in
	// the catalog. This is a caller bug, not a retryable condition.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidVariant indicates the caller supplied a variant name that
	// the operation's variant table does not contain.
	ErrInvalidVariant = errors.New("invalid variant")

	// ErrInvalidUsage indicates negative units, tokens or size metrics.
	ErrInvalidUsage = errors.New("invalid usage")
)
