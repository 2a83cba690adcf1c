package mp4

import (
	"time"

	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
)

type fragmentedSample struct {
	*fmp4.PartSample
	dts int64
}

type fragmentedTrack struct {
	w         *FragmentedWriter
	initTrack *fmp4.InitTrack

	nextSample   *fragmentedSample
	lastDuration uint32
	ended        bool
}

// TrackID implements TrackToken.
func (t *fragmentedTrack) TrackID() int {
	return t.initTrack.ID
}

func (t *fragmentedTrack) dtsToDuration(v int64) time.Duration {
	return time.Duration(multiplyAndDivide(v, int64(time.Second), int64(t.initTrack.TimeScale)))
}

func (t *fragmentedTrack) write(sample *fragmentedSample) error {
	sample, t.nextSample = t.nextSample, sample
	if sample == nil {
		return nil
	}

	duration := t.nextSample.dts - sample.dts
	if duration < 0 {
		t.nextSample.dts = sample.dts
		duration = 0
	}

	sample.Duration = clampUint32(duration)
	t.lastDuration = sample.Duration

	t.w.appendSample(t, sample)

	nextDTS := t.dtsToDuration(t.nextSample.dts)

	if (!t.w.hasVideo || t.initTrack.Codec.IsVideo()) &&
		!t.nextSample.IsNonSyncSample &&
		(nextDTS-t.w.currentFragment.startDTS) >= t.w.FragmentDuration {
		return t.w.flushFragment()
	}

	return nil
}

// flushPending moves the pending sample into the current fragment.
// Its duration is the one of the previous sample.
func (t *fragmentedTrack) flushPending() {
	if t.nextSample == nil {
		return
	}

	sample := t.nextSample
	t.nextSample = nil
	sample.Duration = t.lastDuration

	t.w.appendSample(t, sample)
}

type fragment struct {
	startDTS   time.Duration
	partTracks []*fmp4.PartTrack
	byTrack    map[*fragmentedTrack]*fmp4.PartTrack
}

func (f *fragment) write(t *fragmentedTrack, sample *fragmentedSample) {
	partTrack, ok := f.byTrack[t]
	if !ok {
		baseTime := sample.dts
		if baseTime < 0 {
			baseTime = 0
		}

		partTrack = &fmp4.PartTrack{
			ID:       t.initTrack.ID,
			BaseTime: uint64(baseTime),
		}
		f.byTrack[t] = partTrack
		f.partTracks = append(f.partTracks, partTrack)
	}

	partTrack.Samples = append(partTrack.Samples, sample.PartSample)
}
