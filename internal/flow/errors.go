package flow

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrDuplicateID       = errors.New("duplicate identity")
	ErrOrphanedReference = errors.New("orphaned station reference")
	ErrNoGardenStations  = errors.New("no garden stations registered")
	ErrInvalidArgument   = errors.New("invalid argument")
)
