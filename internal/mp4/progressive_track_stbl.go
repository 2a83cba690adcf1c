package mp4

import (
	"math"

	gomp4 "github.com/abema/go-mp4"
)

func marshalDINF(w *boxWriter) error {
	_, err := w.writeBoxStart(&gomp4.Dinf{}) // <dinf>
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&gomp4.Dref{ // <dref>
		EntryCount: 1,
	})
	if err != nil {
		return err
	}

	_, err = w.writeBox(&gomp4.Url{ // <url/>
		FullBox: gomp4.FullBox{
			Flags: [3]byte{0, 0, 1},
		},
	})
	if err != nil {
		return err
	}

	err = w.writeBoxEnd() // </dref>
	if err != nil {
		return err
	}

	return w.writeBoxEnd() // </dinf>
}

func (t *progressiveTrack) marshalEDTS(w *boxWriter, tm *progressiveTiming) error {
	if len(t.samples) == 0 {
		return nil
	}

	_, err := w.writeBoxStart(&gomp4.Edts{}) // <edts>
	if err != nil {
		return err
	}

	var entries []gomp4.ElstEntry

	if tm.emptyEdit > 0 {
		entries = append(entries, gomp4.ElstEntry{ // pause
			SegmentDurationV0: clampUint32(timeScaleToMovie(tm.emptyEdit, t.timeScale)),
			MediaTimeV0:       -1,
			MediaRateInteger:  1,
		})
	}

	mediaTime := tm.mediaTime
	if mediaTime > math.MaxInt32 {
		mediaTime = math.MaxInt32
	}

	entries = append(entries, gomp4.ElstEntry{ // presentation
		SegmentDurationV0: clampUint32(timeScaleToMovie(tm.segmentDuration(), t.timeScale)),
		MediaTimeV0:       int32(mediaTime),
		MediaRateInteger:  1,
	})

	_, err = w.writeBox(&gomp4.Elst{ // <elst/>
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	if err != nil {
		return err
	}

	return w.writeBoxEnd() // </edts>
}

func (t *progressiveTrack) marshalSTTS(w *boxWriter, tm *progressiveTiming) error {
	var entries []gomp4.SttsEntry

	for _, d := range tm.durations {
		if len(entries) != 0 && entries[len(entries)-1].SampleDelta == d {
			entries[len(entries)-1].SampleCount++
		} else {
			entries = append(entries, gomp4.SttsEntry{
				SampleCount: 1,
				SampleDelta: d,
			})
		}
	}

	_, err := w.writeBox(&gomp4.Stts{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	return err
}

func (t *progressiveTrack) marshalSTSS(w *boxWriter) error {
	var sampleNumbers []uint32
	allSync := true

	for i, sa := range t.samples {
		if sa.isSync {
			sampleNumbers = append(sampleNumbers, uint32(i+1))
		} else {
			allSync = false
		}
	}

	if allSync {
		return nil
	}

	_, err := w.writeBox(&gomp4.Stss{
		EntryCount:   uint32(len(sampleNumbers)),
		SampleNumber: sampleNumbers,
	})
	return err
}

func (t *progressiveTrack) marshalCTTS(w *boxWriter, tm *progressiveTiming) error {
	needed := false
	for _, off := range tm.ptsOffsets {
		if off != 0 {
			needed = true
			break
		}
	}

	if !needed {
		return nil
	}

	var entries []gomp4.CttsEntry

	for _, off := range tm.ptsOffsets {
		if len(entries) != 0 && entries[len(entries)-1].SampleOffsetV0 == off {
			entries[len(entries)-1].SampleCount++
		} else {
			entries = append(entries, gomp4.CttsEntry{
				SampleCount:    1,
				SampleOffsetV0: off,
			})
		}
	}

	_, err := w.writeBox(&gomp4.Ctts{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	return err
}

// chunks returns the number of samples of each chunk.
// A chunk is a run of samples that are contiguous in the file.
func (t *progressiveTrack) chunks() ([]uint32, []uint64) {
	var counts []uint32
	var offsets []uint64
	var next uint64

	for i, sa := range t.samples {
		if i != 0 && sa.offset == next {
			counts[len(counts)-1]++
		} else {
			counts = append(counts, 1)
			offsets = append(offsets, sa.offset)
		}
		next = sa.offset + uint64(sa.size)
	}

	return counts, offsets
}

func (t *progressiveTrack) marshalSTSC(w *boxWriter) error {
	counts, _ := t.chunks()

	var entries []gomp4.StscEntry

	for i, count := range counts {
		if len(entries) != 0 && entries[len(entries)-1].SamplesPerChunk == count {
			continue
		}

		entries = append(entries, gomp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        count,
			SampleDescriptionIndex: 1,
		})
	}

	_, err := w.writeBox(&gomp4.Stsc{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	return err
}

func (t *progressiveTrack) marshalSTSZ(w *boxWriter) error {
	sampleSizes := make([]uint32, len(t.samples))

	for i, sa := range t.samples {
		sampleSizes[i] = sa.size
	}

	_, err := w.writeBox(&gomp4.Stsz{
		SampleSize:  0,
		SampleCount: uint32(len(sampleSizes)),
		EntrySize:   sampleSizes,
	})
	return err
}

func (t *progressiveTrack) marshalSTCO(w *boxWriter) error {
	_, offsets := t.chunks()

	if len(offsets) != 0 && offsets[len(offsets)-1] > math.MaxUint32 {
		_, err := w.writeBox(&gomp4.Co64{
			EntryCount:  uint32(len(offsets)),
			ChunkOffset: offsets,
		})
		return err
	}

	entries := make([]uint32, len(offsets))
	for i, off := range offsets {
		entries[i] = uint32(off)
	}

	_, err := w.writeBox(&gomp4.Stco{
		EntryCount:  uint32(len(entries)),
		ChunkOffset: entries,
	})
	return err
}
