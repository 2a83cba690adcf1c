package mp4

import (
	"math"
	"sort"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
)

type progressiveSample struct {
	pts    int64
	size   uint32
	offset uint64
	isSync bool
}

type progressiveTrack struct {
	w         *ProgressiveWriter
	id        int
	timeScale uint32
	codec     fmp4.Codec
	params    *codecParams

	samples []*progressiveSample
	ended   bool
}

// TrackID implements TrackToken.
func (t *progressiveTrack) TrackID() int {
	return t.id
}

// progressiveTiming contains timing information computed when the writer is closed.
// Decode timestamps are the sorted presentation timestamps,
// shifted in order not to exceed presentation timestamps.
type progressiveTiming struct {
	durations     []uint32
	ptsOffsets    []uint32
	shift         int64
	mediaTime     int64
	emptyEdit     int64
	mediaDuration int64
}

// segmentDuration is the duration of the presented part of the media.
func (tm *progressiveTiming) segmentDuration() int64 {
	d := tm.mediaDuration + tm.shift - tm.mediaTime
	if d < 0 {
		return 0
	}
	return d
}

func (t *progressiveTrack) computeTiming() *progressiveTiming {
	n := len(t.samples)
	if n == 0 {
		return &progressiveTiming{}
	}

	sorted := make([]int64, n)
	for i, sa := range t.samples {
		sorted[i] = sa.pts
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	shift := int64(0)
	for i, sa := range t.samples {
		if d := sorted[i] - sa.pts; d > shift {
			shift = d
		}
	}

	tm := &progressiveTiming{
		durations:  make([]uint32, n),
		ptsOffsets: make([]uint32, n),
		shift:      shift,
	}

	for i := 0; i < n-1; i++ {
		tm.durations[i] = clampUint32(sorted[i+1] - sorted[i])
	}
	if n >= 2 {
		tm.durations[n-1] = tm.durations[n-2]
	}

	for i, sa := range t.samples {
		tm.ptsOffsets[i] = clampUint32(sa.pts - (sorted[i] - shift))
		tm.mediaDuration += int64(tm.durations[i])
	}

	start := sorted[0]
	if start > 0 {
		tm.emptyEdit = start
		tm.mediaTime = shift
	} else {
		tm.mediaTime = shift - start
	}

	return tm
}

func clampUint32(v int64) uint32 {
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(v)
}

func (t *progressiveTrack) marshal(w *boxWriter, meta *stagedMetadata) (int64, error) {
	/*
		|trak|
		|    |tkhd|
		|    |edts|
		|    |    |elst|
		|    |mdia|
		|    |    |mdhd|
		|    |    |hdlr|
		|    |    |minf|
		|    |    |    |vmhd| (video)
		|    |    |    |smhd| (audio)
		|    |    |    |dinf|
		|    |    |    |    |dref|
		|    |    |    |    |    |url|
		|    |    |    |stbl|
		|    |    |    |    |stsd|
		|    |    |    |    |stts|
		|    |    |    |    |stss|
		|    |    |    |    |ctts|
		|    |    |    |    |stsc|
		|    |    |    |    |stsz|
		|    |    |    |    |stco| or |co64|
	*/

	tm := t.computeTiming()

	presentationDuration := timeScaleToMovie(tm.emptyEdit+tm.segmentDuration(), t.timeScale)

	_, err := w.writeBoxStart(&gomp4.Trak{}) // <trak>
	if err != nil {
		return 0, err
	}

	tkhd := &gomp4.Tkhd{ // <tkhd/>
		FullBox: gomp4.FullBox{
			Flags: [3]byte{0, 0, 3},
		},
		CreationTimeV0:     meta.creationTime(),
		ModificationTimeV0: meta.modificationTime(),
		TrackID:            uint32(t.id),
		DurationV0:         clampUint32(presentationDuration),
		Matrix:             orientationMatrix(0),
	}

	if t.codec.IsVideo() {
		tkhd.Width = uint32(t.params.width * 65536)
		tkhd.Height = uint32(t.params.height * 65536)
		tkhd.Matrix = orientationMatrix(meta.orientation)
	} else {
		tkhd.AlternateGroup = 1
		tkhd.Volume = 256
	}

	_, err = w.writeBox(tkhd)
	if err != nil {
		return 0, err
	}

	err = t.marshalEDTS(w, tm)
	if err != nil {
		return 0, err
	}

	_, err = w.writeBoxStart(&gomp4.Mdia{}) // <mdia>
	if err != nil {
		return 0, err
	}

	_, err = w.writeBox(&gomp4.Mdhd{ // <mdhd/>
		CreationTimeV0:     meta.creationTime(),
		ModificationTimeV0: meta.modificationTime(),
		Timescale:          t.timeScale,
		DurationV0:         clampUint32(tm.mediaDuration),
		Language:           [3]byte{'u', 'n', 'd'},
	})
	if err != nil {
		return 0, err
	}

	if t.codec.IsVideo() {
		_, err = w.writeBox(&gomp4.Hdlr{ // <hdlr/>
			HandlerType: [4]byte{'v', 'i', 'd', 'e'},
			Name:        "VideoHandle",
		})
	} else {
		_, err = w.writeBox(&gomp4.Hdlr{ // <hdlr/>
			HandlerType: [4]byte{'s', 'o', 'u', 'n'},
			Name:        "SoundHandle",
		})
	}
	if err != nil {
		return 0, err
	}

	_, err = w.writeBoxStart(&gomp4.Minf{}) // <minf>
	if err != nil {
		return 0, err
	}

	if t.codec.IsVideo() {
		_, err = w.writeBox(&gomp4.Vmhd{ // <vmhd/>
			FullBox: gomp4.FullBox{
				Flags: [3]byte{0, 0, 1},
			},
		})
	} else {
		_, err = w.writeBox(&gomp4.Smhd{}) // <smhd/>
	}
	if err != nil {
		return 0, err
	}

	err = marshalDINF(w)
	if err != nil {
		return 0, err
	}

	_, err = w.writeBoxStart(&gomp4.Stbl{}) // <stbl>
	if err != nil {
		return 0, err
	}

	_, err = w.writeBoxStart(&gomp4.Stsd{ // <stsd>
		EntryCount: 1,
	})
	if err != nil {
		return 0, err
	}

	err = writeSampleEntry(w, t.id, t.codec, t.params)
	if err != nil {
		return 0, err
	}

	err = w.writeBoxEnd() // </stsd>
	if err != nil {
		return 0, err
	}

	err = t.marshalSTTS(w, tm) // <stts/>
	if err != nil {
		return 0, err
	}

	err = t.marshalSTSS(w) // <stss/>
	if err != nil {
		return 0, err
	}

	err = t.marshalCTTS(w, tm) // <ctts/>
	if err != nil {
		return 0, err
	}

	err = t.marshalSTSC(w) // <stsc/>
	if err != nil {
		return 0, err
	}

	err = t.marshalSTSZ(w) // <stsz/>
	if err != nil {
		return 0, err
	}

	err = t.marshalSTCO(w) // <stco/>
	if err != nil {
		return 0, err
	}

	err = w.writeBoxEnd() // </stbl>
	if err != nil {
		return 0, err
	}

	err = w.writeBoxEnd() // </minf>
	if err != nil {
		return 0, err
	}

	err = w.writeBoxEnd() // </mdia>
	if err != nil {
		return 0, err
	}

	err = w.writeBoxEnd() // </trak>
	if err != nil {
		return 0, err
	}

	return presentationDuration, nil
}
