package mp4

import (
	"fmt"
	"io"

	gomp4 "github.com/abema/go-mp4"

	"github.com/bluenviron/mp4mux/internal/logger"
	"github.com/bluenviron/mp4mux/internal/metadata"
)

// ProgressiveWriter writes a regular MP4 file.
// Samples are written into the mdat box as soon as they are received,
// the moov box is written when the writer is closed.
type ProgressiveWriter struct {
	W      io.WriteSeeker
	Parent logger.Writer

	bw     *boxWriter
	tracks []*progressiveTrack
	meta   stagedMetadata
	closed bool
}

// Initialize initializes ProgressiveWriter.
func (w *ProgressiveWriter) Initialize() error {
	/*
		|ftyp|
		|mdat|
		|moov| (on close)
	*/

	w.bw = newBoxWriter(w.W)

	_, err := w.bw.writeBox(&gomp4.Ftyp{ // <ftyp/>
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 512,
		CompatibleBrands: []gomp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', '2'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '2'}},
		},
	})
	if err != nil {
		return err
	}

	// the size is filled when closing. A large header allows files bigger than 4GB.
	_, err = w.bw.w.StartBox(&gomp4.BoxInfo{ // <mdat>
		Type:       gomp4.BoxTypeMdat(),
		HeaderSize: gomp4.LargeHeaderSize,
	})
	if err != nil {
		return err
	}

	return nil
}

// Log implements logger.Writer.
func (w *ProgressiveWriter) Log(level logger.Level, format string, args ...interface{}) {
	w.Parent.Log(level, "[mp4] "+format, args...)
}

// AddTrack adds a track.
func (w *ProgressiveWriter) AddTrack(f *Format) (TrackToken, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}

	params, err := parseCodec(f.Codec)
	if err != nil {
		return nil, err
	}

	t := &progressiveTrack{
		w:         w,
		id:        len(w.tracks) + 1,
		timeScale: f.timeScale(),
		codec:     f.Codec,
		params:    params,
	}
	w.tracks = append(w.tracks, t)

	w.Log(logger.Debug, "added track %d (%s, time scale %d)", t.id, f.MIMEType(), t.timeScale)

	return t, nil
}

// WriteSample writes a sample.
func (w *ProgressiveWriter) WriteSample(token TrackToken, data []byte, info SampleInfo) error {
	if w.closed {
		return ErrWriterClosed
	}

	t, ok := token.(*progressiveTrack)
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

		// end-of-stream markers may come without a payload.
		if len(data) == 0 {
			return nil
		}
	}

	off, err := w.bw.offset()
	if err != nil {
		return err
	}

	_, err = w.bw.w.Write(data)
	if err != nil {
		return err
	}

	t.samples = append(t.samples, &progressiveSample{
		pts:    usToTimeScale(info.PresentationTimeUs, t.timeScale),
		size:   uint32(len(data)),
		offset: uint64(off),
		isSync: (info.Flags & SampleFlagSync) != 0,
	})

	return nil
}

// AddMetadata adds a metadata entry.
// Entries are written when the writer is closed.
func (w *ProgressiveWriter) AddMetadata(e metadata.Entry) {
	w.meta.add(e)
}

// Close finalizes the file and closes W when it is an io.Closer.
func (w *ProgressiveWriter) Close() error {
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

func (w *ProgressiveWriter) finalize() error {
	_, err := w.bw.w.EndBox() // </mdat>
	if err != nil {
		return err
	}

	if len(w.tracks) == 0 {
		return ErrNoTracks
	}

	err = w.writeMoov()
	if err != nil {
		return err
	}

	return w.meta.err
}

func (w *ProgressiveWriter) writeMoov() error {
	/*
		|moov|
		|    |mvhd|
		|    |trak|
		|    |trak|
		|    |....|
		|    |udta|
		|    |meta|
	*/

	_, err := w.bw.writeBoxStart(&gomp4.Moov{}) // <moov>
	if err != nil {
		return err
	}

	mvhd := &gomp4.Mvhd{ // <mvhd/>
		CreationTimeV0:     w.meta.creationTime(),
		ModificationTimeV0: w.meta.modificationTime(),
		Timescale:          movieTimeScale,
		Rate:               65536,
		Volume:             256,
		Matrix:             orientationMatrix(0),
		NextTrackID:        uint32(len(w.tracks) + 1),
	}
	mvhdOffset, err := w.bw.writeBox(mvhd)
	if err != nil {
		return err
	}

	for _, t := range w.tracks {
		var presentationDuration int64
		presentationDuration, err = t.marshal(w.bw, &w.meta)
		if err != nil {
			return err
		}

		if d := clampUint32(presentationDuration); d > mvhd.DurationV0 {
			mvhd.DurationV0 = d
		}
	}

	err = w.bw.rewriteBox(mvhdOffset, mvhd)
	if err != nil {
		return err
	}

	err = w.meta.writeMoovMetadata(w.bw)
	if err != nil {
		return err
	}

	return w.bw.writeBoxEnd() // </moov>
}
