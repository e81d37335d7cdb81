package detour

import (
	"errors"
	"fmt"
)

type DtStatus uint32

const (
	// High level status.
	DT_FAILURE     DtStatus = 1 << 31 // Operation failed.
	DT_SUCCESS     DtStatus = 1 << 30 // Operation succeed.
	DT_IN_PROGRESS DtStatus = 1 << 29 // Operation still in progress.

	// Detail information for status.
	DT_STATUS_DETAIL_MASK DtStatus = 0x0ffffff
	DT_WRONG_MAGIC        DtStatus = 1 << 0 // Input data is not recognized.
	DT_WRONG_VERSION      DtStatus = 1 << 1 // Input data is in wrong version.
	DT_OUT_OF_MEMORY      DtStatus = 1 << 2 // Operation ran out of memory.
	DT_INVALID_PARAM      DtStatus = 1 << 3 // An input parameter was invalid.
	DT_BUFFER_TOO_SMALL   DtStatus = 1 << 4 // Result buffer for the query was too small to store all results.
	DT_OUT_OF_NODES       DtStatus = 1 << 5 // Query ran out of nodes during search.
	DT_PARTIAL_RESULT     DtStatus = 1 << 6 // Query did not reach the end location, returning best guess.
	DT_ALREADY_OCCUPIED   DtStatus = 1 << 7 // A tile has already been assigned to the given x,y coordinate
	DT_NOT_FOUND          DtStatus = 1 << 8 // No polygon or path satisfies the query under the filter.
)

var (
	ErrFailure         = errors.New("operation failed")
	ErrWrongMagic      = fmt.Errorf("%w: input data is not recognized", ErrFailure)
	ErrWrongVersion    = fmt.Errorf("%w: input data is in wrong version", ErrFailure)
	ErrOutOfMemory     = fmt.Errorf("%w: operation ran out of memory", ErrFailure)
	ErrInvalidParam    = fmt.Errorf("%w: an input parameter was invalid", ErrFailure)
	ErrAlreadyOccupied = fmt.Errorf("%w: a tile is already assigned to the location", ErrFailure)
	ErrNotFound        = fmt.Errorf("%w: no result satisfies the query filter", ErrFailure)

	ErrBufferTooSmall = errors.New("result buffer for the query was too small to store all results")
	ErrOutOfNodes     = errors.New("query ran out of nodes during search")
	ErrInProgress     = errors.New("operation in progress")
	ErrPartialResult  = errors.New("query did not reach the end location, returning best guess")
)

// Succeed returns true of status is success.
func (status DtStatus) Succeed() bool {
	return (status & DT_SUCCESS) != 0
}

// Failed returns true of status is failure.
func (status DtStatus) Failed() bool {
	return (status & DT_FAILURE) != 0
}

// InProgress returns true of status is in progress.
func (status DtStatus) InProgress() bool {
	return (status & DT_IN_PROGRESS) != 0
}

// Detail returns true if specific detail is set.
func (status DtStatus) Detail(detail DtStatus) bool {
	return (status & detail) != 0
}

// Err maps the status onto the package sentinel errors. A successful status
// carrying DT_PARTIAL_RESULT still yields ErrPartialResult so partial answers
// are never mistaken for complete ones.
func (status DtStatus) Err() error {
	switch {
	case status.Failed():
		switch {
		case status.Detail(DT_WRONG_MAGIC):
			return ErrWrongMagic
		case status.Detail(DT_WRONG_VERSION):
			return ErrWrongVersion
		case status.Detail(DT_OUT_OF_MEMORY):
			return ErrOutOfMemory
		case status.Detail(DT_INVALID_PARAM):
			return ErrInvalidParam
		case status.Detail(DT_ALREADY_OCCUPIED):
			return ErrAlreadyOccupied
		case status.Detail(DT_BUFFER_TOO_SMALL):
			return fmt.Errorf("%w: %w", ErrFailure, ErrBufferTooSmall)
		case status.Detail(DT_NOT_FOUND):
			return ErrNotFound
		}
		return ErrFailure
	case status.InProgress():
		return ErrInProgress
	case status.Detail(DT_PARTIAL_RESULT):
		return ErrPartialResult
	}
	return nil
}

func (status DtStatus) String() string {
	var s string
	switch {
	case status.Failed():
		s = "failure"
	case status.InProgress():
		s = "in_progress"
	case status.Succeed():
		s = "success"
	default:
		s = "idle"
	}
	names := []struct {
		bit  DtStatus
		name string
	}{
		{DT_WRONG_MAGIC, "wrong_magic"},
		{DT_WRONG_VERSION, "wrong_version"},
		{DT_OUT_OF_MEMORY, "out_of_memory"},
		{DT_INVALID_PARAM, "invalid_param"},
		{DT_BUFFER_TOO_SMALL, "buffer_too_small"},
		{DT_OUT_OF_NODES, "out_of_nodes"},
		{DT_PARTIAL_RESULT, "partial_result"},
		{DT_ALREADY_OCCUPIED, "already_occupied"},
		{DT_NOT_FOUND, "not_found"},
	}
	for _, n := range names {
		if status.Detail(n.bit) {
			s += "|" + n.name
		}
	}
	return s
}
