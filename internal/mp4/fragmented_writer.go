package mp4

import (
	"fmt"
	"io"
	"time"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4/seekablebuffer"

	"github.com/bluenviron/mp4mux/internal/logger"
	"github.com/bluenviron/mp4mux/internal/metadata"
)

const (
	defaultFragmentDuration = 2 * time.Second

	// space reserved after the initialization segment,
	// used to store metadata received after the first fragment.
	initReservedSpace = 4096
)

// FragmentedWriter writes a fragmented MP4 file.
// Tracks must be added before the first fragment is written.
type FragmentedWriter struct {
	W                io.WriteSeeker
	FragmentDuration time.Duration
	Parent           logger.Writer

	tracks             []*fragmentedTrack
	hasVideo           bool
	meta               stagedMetadata
	currentFragment    *fragment
	nextSequenceNumber uint32
	initRegionSize     int
	closed             bool
}

// Initialize initializes FragmentedWriter.
func (w *FragmentedWriter) Initialize() error {
	if w.FragmentDuration == 0 {
		w.FragmentDuration = defaultFragmentDuration
	}
	if w.FragmentDuration < 0 {
		return fmt.Errorf("invalid fragment duration: %v", w.FragmentDuration)
	}

	w.nextSequenceNumber = 1

	return nil
}

// Log implements logger.Writer.
func (w *FragmentedWriter) Log(level logger.Level, format string, args ...interface{}) {
	w.Parent.Log(level, "[fmp4] "+format, args...)
}

// AddTrack adds a track.
func (w *FragmentedWriter) AddTrack(f *Format) (TrackToken, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}

	if w.initRegionSize != 0 {
		return nil, ErrTracksLocked
	}

	_, err := parseCodec(f.Codec)
	if err != nil {
		return nil, err
	}

	t := &fragmentedTrack{
		w: w,
		initTrack: &fmp4.InitTrack{
			ID:        len(w.tracks) + 1,
			TimeScale: f.timeScale(),
			Codec:     f.Codec,
		},
	}
	w.tracks = append(w.tracks, t)

	if f.IsVideo() {
		w.hasVideo = true
	}

	w.Log(logger.Debug, "added track %d (%s, time scale %d)", t.initTrack.ID, f.MIMEType(), t.initTrack.TimeScale)

	return t, nil
}

// WriteSample writes a sample.
func (w *FragmentedWriter) WriteSample(token TrackToken, data []byte, info SampleInfo) error {
	if w.closed {
		return ErrWriterClosed
	}

	t, ok := token.(*fragmentedTrack)
	if !ok || t.w != w {
		return ErrForeignToken
	}

	if t.ended {
		return ErrTrackEnded
	}

	if info.Size != len(data) {
		return fmt.Errorf("sample size (%d) does not match payload size (%d)", info.Size, len(data))
	}

	if (info.Flags & SampleFlagEndOfStream) != 0 {
		t.ended = true

		if len(data) == 0 {
			return nil
		}
	}

	return t.write(&fragmentedSample{
		PartSample: &fmp4.PartSample{
			IsNonSyncSample: (info.Flags & SampleFlagSync) == 0,
			Payload:         data,
		},
		dts: usToTimeScale(info.PresentationTimeUs, t.initTrack.TimeScale),
	})
}

// AddMetadata adds a metadata entry.
func (w *FragmentedWriter) AddMetadata(e metadata.Entry) {
	w.meta.add(e)
}

// Close writes pending samples, updates metadata and closes W when it is an io.Closer.
func (w *FragmentedWriter) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true

	err := w.finalize()

	if c, ok := w.W.(io.Closer); ok {
		err2 := c.Close()
		if err == nil {
			err = err2
		}
	}

	return err
}

func (w *FragmentedWriter) finalize() error {
	if len(w.tracks) == 0 {
		return ErrNoTracks
	}

	for _, t := range w.tracks {
		t.flushPending()
	}

	if w.currentFragment != nil {
		err := w.flushFragment()
		if err != nil {
			return err
		}
	}

	if w.initRegionSize == 0 {
		err := w.writeInit()
		if err != nil {
			return err
		}
	}

	err := w.rewriteInit()
	if err != nil {
		return err
	}

	return w.meta.err
}

func (w *FragmentedWriter) appendSample(t *fragmentedTrack, sample *fragmentedSample) {
	if w.currentFragment == nil {
		w.currentFragment = &fragment{
			startDTS: t.dtsToDuration(sample.dts),
			byTrack:  make(map[*fragmentedTrack]*fmp4.PartTrack),
		}
	}

	w.currentFragment.write(t, sample)
}

func (w *FragmentedWriter) flushFragment() error {
	if w.initRegionSize == 0 {
		err := w.writeInit()
		if err != nil {
			return err
		}
	}

	part := &fmp4.Part{
		SequenceNumber: w.nextSequenceNumber,
		Tracks:         w.currentFragment.partTracks,
	}
	w.nextSequenceNumber++
	w.currentFragment = nil

	var buf seekablebuffer.Buffer
	err := part.Marshal(&buf)
	if err != nil {
		return err
	}

	_, err = w.W.Write(buf.Bytes())
	return err
}

func (w *FragmentedWriter) marshalInit() ([]byte, error) {
	init := &fmp4.Init{
		Tracks: make([]*fmp4.InitTrack, len(w.tracks)),
	}

	videoTrackIDs := make(map[uint32]struct{})

	for i, t := range w.tracks {
		init.Tracks[i] = t.initTrack

		if t.initTrack.Codec.IsVideo() {
			videoTrackIDs[uint32(t.initTrack.ID)] = struct{}{}
		}
	}

	var buf seekablebuffer.Buffer
	err := init.Marshal(&buf)
	if err != nil {
		return nil, err
	}

	return patchInit(buf.Bytes(), &w.meta, videoTrackIDs)
}

func (w *FragmentedWriter) writeInit() error {
	byts, err := w.marshalInit()
	if err != nil {
		return err
	}

	_, err = w.W.Write(byts)
	if err != nil {
		return err
	}

	err = writeFree(w.W, initReservedSpace)
	if err != nil {
		return err
	}

	w.initRegionSize = len(byts) + initReservedSpace
	return nil
}

// rewriteInit replaces the initialization segment with one that contains all metadata.
func (w *FragmentedWriter) rewriteInit() error {
	byts, err := w.marshalInit()
	if err != nil {
		return err
	}

	free := w.initRegionSize - len(byts)

	if free != 0 && free < 8 {
		w.Log(logger.Warn, "metadata does not fit into the reserved space (%d bytes), discarding it",
			initReservedSpace)
		return nil
	}

	end, err := w.W.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	_, err = w.W.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}

	_, err = w.W.Write(byts)
	if err != nil {
		return err
	}

	if free != 0 {
		err = writeFree(w.W, free)
		if err != nil {
			return err
		}
	}

	_, err = w.W.Seek(end, io.SeekStart)
	return err
}

func writeFree(w io.WriteSeeker, size int) error {
	_, err := newBoxWriter(w).writeBox(&gomp4.Free{
		Data: make([]byte, size-8),
	})
	return err
}
