// Package errs defines the error kinds surfaced at FusionSound's public API
// boundary. Every public operation either succeeds or returns one of these
// wrapped in context via fmt.Errorf("...: %w", errs.InvalidArgument) and
// leaves all objects in their prior state.
package errs

import "errors"

// Sentinel error kinds. Use errors.Is against these after wrapping with
// fmt.Errorf("%w: ...", kind) or fmt.Errorf("...: %w", kind).
var (
	InvalidArgument        = errors.New("invalid argument")
	Unsupported             = errors.New("unsupported")
	OutOfMemory             = errors.New("out of memory")
	Busy                    = errors.New("busy")
	Locked                  = errors.New("locked")
	TemporarilyUnavailable  = errors.New("temporarily unavailable")
	LimitExceeded           = errors.New("limit exceeded")
	IoFailure               = errors.New("i/o failure")
	BufferEmpty             = errors.New("buffer empty")
	EndOfFile               = errors.New("end of file")
	Timeout                 = errors.New("timeout")
	Suspended               = errors.New("suspended")
	Unimplemented           = errors.New("unimplemented")
)

// Is reports whether err wraps the given sentinel kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
