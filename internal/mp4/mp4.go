// Package mp4 contains MP4 container writers.
package mp4

import (
	"errors"
	"time"
)

const (
	movieTimeScale = 1000
)

// Errors returned by writers.
var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrForeignToken     = errors.New("track token does not belong to this writer")
	ErrTrackEnded       = errors.New("track has already reached the end of stream")
	ErrNoTracks         = errors.New("no tracks have been added")
	ErrTracksLocked     = errors.New("tracks cannot be added after the first fragment has been written")
	ErrWriterClosed     = errors.New("writer is closed")
)

// SampleFlags are flags of a sample.
type SampleFlags int

// Sample flags.
const (
	SampleFlagSync SampleFlags = 1 << iota
	SampleFlagEndOfStream
)

// SampleInfo describes a sample.
type SampleInfo struct {
	PresentationTimeUs int64
	Size               int
	Flags              SampleFlags
}

// TrackToken identifies a track of a writer.
type TrackToken interface {
	TrackID() int
}

// avoid an int64 overflow and preserve resolution by splitting division into two parts:
// first add the integer part, then the decimal part.
func multiplyAndDivide(v, m, d int64) int64 {
	secs := v / d
	dec := v % d
	return (secs*m + dec*m/d)
}

func usToTimeScale(v int64, timeScale uint32) int64 {
	return multiplyAndDivide(v, int64(timeScale), int64(time.Second/time.Microsecond))
}

func timeScaleToMovie(v int64, timeScale uint32) int64 {
	return multiplyAndDivide(v, movieTimeScale, int64(timeScale))
}
