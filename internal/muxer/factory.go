package muxer

import (
	"fmt"
	"os"
	"time"

	"github.com/bluenviron/mp4mux/internal/logger"
	"github.com/bluenviron/mp4mux/internal/metadata"
	"github.com/bluenviron/mp4mux/internal/mp4"
)

// TrackType is the type of a track.
type TrackType int

// track types.
const (
	TrackTypeVideo TrackType = iota
	TrackTypeAudio
	TrackTypeText
)

// Factory creates muxers that write to files.
type Factory struct {
	MetadataProvider    metadata.Provider
	OutputFragmentedMP4 bool

	// only used with fragmented output. When zero, the writer default is used.
	FragmentDuration time.Duration

	Parent logger.Writer
}

// Create creates a Muxer that writes to the given path.
func (fa *Factory) Create(path string) (*Muxer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	m := &Muxer{
		MetadataProvider: fa.MetadataProvider,
		Parent:           fa.Parent,
	}

	if fa.OutputFragmentedMP4 {
		w := &mp4.FragmentedWriter{
			W:                f,
			FragmentDuration: fa.FragmentDuration,
			Parent:           m,
		}
		err = w.Initialize()
		m.Writer = w
	} else {
		w := &mp4.ProgressiveWriter{
			W:      f,
			Parent: m,
		}
		err = w.Initialize()
		m.Writer = w
	}

	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	err = m.Initialize()
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	m.Log(logger.Debug, "writing to %s (fragmented: %v)", path, fa.OutputFragmentedMP4)

	return m, nil
}

// SupportedSampleMIMETypes returns the sample MIME types supported for a track type.
func (fa *Factory) SupportedSampleMIMETypes(trackType TrackType) []string {
	switch trackType {
	case TrackTypeVideo:
		return []string{mp4.MIMETypeVideoH264, mp4.MIMETypeVideoH265, mp4.MIMETypeVideoAV1}

	case TrackTypeAudio:
		return []string{mp4.MIMETypeAudioAAC}
	}

	return nil
}
