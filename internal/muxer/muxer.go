// Package muxer contains a sample multiplexer that feeds a container writer.
package muxer

import (
	"fmt"

	"github.com/bluenviron/mp4mux/internal/logger"
	"github.com/bluenviron/mp4mux/internal/metadata"
	"github.com/bluenviron/mp4mux/internal/mp4"
)

// ContainerWriter is a container writer.
type ContainerWriter interface {
	AddTrack(f *mp4.Format) (mp4.TrackToken, error)
	WriteSample(token mp4.TrackToken, data []byte, info mp4.SampleInfo) error
	AddMetadata(e metadata.Entry)
	Close() error
}

// BufferFlags are flags attached to a sample by the encoder.
type BufferFlags uint32

// Buffer flags.
const (
	BufferFlagKeyFrame    BufferFlags = 1
	BufferFlagEndOfStream BufferFlags = 4
	BufferFlagDecodeOnly  BufferFlags = 1 << 31
)

func (f BufferFlags) sampleFlags() mp4.SampleFlags {
	var out mp4.SampleFlags

	if (f & BufferFlagKeyFrame) != 0 {
		out |= mp4.SampleFlagSync
	}

	if (f & BufferFlagEndOfStream) != 0 {
		out |= mp4.SampleFlagEndOfStream
	}

	return out
}

// Muxer forwards tracks, samples and metadata to a ContainerWriter.
// It is not safe for concurrent use.
type Muxer struct {
	Writer           ContainerWriter
	MetadataProvider metadata.Provider
	Parent           logger.Writer

	tokens  []mp4.TrackToken
	entries *metadata.Set
	closed  bool
}

// Initialize initializes Muxer.
func (m *Muxer) Initialize() error {
	if m.Writer == nil {
		return fmt.Errorf("writer not provided")
	}

	m.entries = metadata.NewSet()

	return nil
}

// Log implements logger.Writer.
// Messages are discarded when Parent is nil.
func (m *Muxer) Log(level logger.Level, format string, args ...interface{}) {
	if m.Parent == nil {
		return
	}
	m.Parent.Log(level, "[muxer] "+format, args...)
}

// AddTrack adds a track and returns its index.
// Indexes start from zero and follow the order of calls.
func (m *Muxer) AddTrack(f *mp4.Format) (int, error) {
	if m.closed {
		return -1, ErrClosed
	}

	token, err := m.Writer.AddTrack(f)
	if err != nil {
		return -1, &MuxingError{
			Op:         opAddTrack,
			TrackIndex: -1,
			Err:        err,
		}
	}

	m.tokens = append(m.tokens, token)
	trackIndex := len(m.tokens) - 1

	// orientation belongs to the video track, it is not subject to MetadataProvider.
	if f.IsVideo() {
		m.Writer.AddMetadata(metadata.Orientation{Degrees: f.RotationDegrees})
	}

	m.Log(logger.Debug, "added track %d (%s)", trackIndex, f.MIMEType())

	return trackIndex, nil
}

// WriteSampleData writes a sample.
// The payload is copied, therefore it can be reused as soon as the function returns.
func (m *Muxer) WriteSampleData(
	trackIndex int,
	data []byte,
	presentationTimeUs int64,
	flags BufferFlags,
) error {
	if m.closed {
		return ErrClosed
	}

	if trackIndex < 0 || trackIndex >= len(m.tokens) {
		return fmt.Errorf("%w: %d", ErrInvalidTrackIndex, trackIndex)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	info := mp4.SampleInfo{
		PresentationTimeUs: presentationTimeUs,
		Size:               len(buf),
		Flags:              flags.sampleFlags(),
	}

	err := m.Writer.WriteSample(m.tokens[trackIndex], buf, info)
	if err != nil {
		return &MuxingError{
			Op:                 opWriteSample,
			TrackIndex:         trackIndex,
			PresentationTimeUs: presentationTimeUs,
			Size:               len(buf),
			Err:                err,
		}
	}

	return nil
}

// AddMetadata adds metadata entries.
// Unsupported entries are discarded. Entries are written when the muxer is closed.
func (m *Muxer) AddMetadata(entries ...metadata.Entry) {
	if m.closed {
		m.Log(logger.Warn, "discarding %d metadata entries received after close", len(entries))
		return
	}

	for _, e := range entries {
		if !metadata.IsSupported(e) {
			m.Log(logger.Debug, "discarding unsupported metadata entry: %v", e)
			continue
		}

		m.entries.Add(e)
	}
}

// Close writes metadata and closes the writer.
// The writer is closed even if MetadataProvider panics.
// forCancellation does not affect the written metadata.
func (m *Muxer) Close(forCancellation bool) (err error) {
	if m.closed {
		return ErrClosed
	}
	m.closed = true

	if forCancellation {
		m.Log(logger.Info, "closing after cancellation")
	}

	defer func() {
		closeErr := m.Writer.Close()
		if closeErr != nil && err == nil {
			err = &MuxingError{
				Op:         opClose,
				TrackIndex: -1,
				Err:        closeErr,
			}
		}
	}()

	m.updateMetadataEntries()

	for _, e := range m.entries.Entries() {
		m.Writer.AddMetadata(e)
	}

	m.Log(logger.Debug, "wrote %d metadata entries", m.entries.Len())

	return nil
}

func (m *Muxer) updateMetadataEntries() {
	if m.MetadataProvider == nil {
		return
	}

	entries := m.entries.Clone()
	m.MetadataProvider.UpdateMetadataEntries(entries)

	for _, e := range entries.Entries() {
		if !metadata.IsSupported(e) {
			m.Log(logger.Debug, "discarding unsupported metadata entry: %v", e)
			entries.Remove(e)
		}
	}

	m.entries = entries
}
