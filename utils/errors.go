package utils

import "errors"

// ErrPrecondition marks a caller bug caught at a component boundary: bad shapes,
// mismatched lengths, malformed trees. Nothing is sent to the backend once it is raised.
var ErrPrecondition = errors.New("precondition violation")

// ErrDepthExhausted marks a modulus chain that is too short for the pipeline.
var ErrDepthExhausted = errors.New("depth exhausted")

// ErrOracleMismatch is returned by debug oracles when a decrypted stage diverges
// from its clear-arithmetic counterpart.
var ErrOracleMismatch = errors.New("oracle mismatch")
