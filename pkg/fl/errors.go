package fl

import "errors"

var (
	ErrInsufficientClients = errors.New("not enough available clients to run the round")
	ErrClientCallFailed    = errors.New("client call failed")
	ErrClientCallTimedOut  = errors.New("client call timed out")
	ErrNoSuccessfulClients = errors.New("no client returned a usable result")
	ErrShapeMismatch       = errors.New("parameter shapes do not match")
	ErrRunAborted          = errors.New("run aborted after too many consecutive failed rounds")
	ErrInvalidSampleCount  = errors.New("sample count must be positive")
	ErrEmptyParameters     = errors.New("empty parameter set")
)
