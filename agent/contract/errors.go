package contract

import "errors"

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnknownAgent = errors.New("agent not found")
	ErrGeneration   = errors.New("generation failed")
	ErrRetrieval    = errors.New("long-term memory retrieval failed")
)
