package muxer

import (
	"errors"
	"fmt"
)

// ErrResourceCreation is returned when the output cannot be created.
var ErrResourceCreation = errors.New("unable to create the output resource")

// ErrInvalidTrackIndex is returned when a sample refers to a track that has not been added.
var ErrInvalidTrackIndex = errors.New("invalid track index")

// ErrClosed is returned when the muxer is used after Close.
var ErrClosed = errors.New("muxer is closed")

const (
	opAddTrack    = "add track"
	opWriteSample = "write sample"
	opClose       = "close"
)

// MuxingError is returned when the container writer fails.
type MuxingError struct {
	Op                 string
	TrackIndex         int
	PresentationTimeUs int64
	Size               int
	Err                error
}

// Error implements the error interface.
func (e *MuxingError) Error() string {
	if e.Op == opWriteSample {
		return fmt.Sprintf("failed to write sample for trackIndex=%d, presentationTimeUs=%d, size=%d: %v",
			e.TrackIndex, e.PresentationTimeUs, e.Size, e.Err)
	}
	return fmt.Sprintf("unable to %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *MuxingError) Unwrap() error {
	return e.Err
}
