package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/pkg/formats/mpegts"

	"github.com/bluenviron/mp4mux/internal/logger"
	"github.com/bluenviron/mp4mux/internal/mp4"
)

var errNoTracks = errors.New("no supported tracks found (supported are H265, H264, MPEG-4 Audio, Opus)")

var errProbeComplete = errors.New("probe complete")

// probedTrack is a MPEG-TS track whose parameters are known.
type probedTrack struct {
	ts     *mpegts.Track
	format *mp4.Format
}

type trackProbe struct {
	track  *mpegts.Track
	format *mp4.Format
	ready  func() bool
}

func newTrackProbe(track *mpegts.Track) *trackProbe {
	switch codec := track.Codec.(type) {
	case *mpegts.CodecH264:
		c := &fmp4.CodecH264{}
		return &trackProbe{
			track:  track,
			format: &mp4.Format{Codec: c},
			ready: func() bool {
				return c.SPS != nil && c.PPS != nil
			},
		}

	case *mpegts.CodecH265:
		c := &fmp4.CodecH265{}
		return &trackProbe{
			track:  track,
			format: &mp4.Format{Codec: c},
			ready: func() bool {
				return c.VPS != nil && c.SPS != nil && c.PPS != nil
			},
		}

	case *mpegts.CodecMPEG4Audio:
		return &trackProbe{
			track: track,
			format: &mp4.Format{Codec: &fmp4.CodecMPEG4Audio{
				Config: codec.Config,
			}},
			ready: func() bool { return true },
		}

	case *mpegts.CodecOpus:
		return &trackProbe{
			track: track,
			format: &mp4.Format{Codec: &fmp4.CodecOpus{
				ChannelCount: codec.ChannelCount,
			}},
			ready: func() bool { return true },
		}
	}

	return nil
}

func copyNALU(nalu []byte) []byte {
	ret := make([]byte, len(nalu))
	copy(ret, nalu)
	return ret
}

func (tp *trackProbe) onH26x(au [][]byte) {
	switch codec := tp.format.Codec.(type) {
	case *fmp4.CodecH264:
		for _, nalu := range au {
			if len(nalu) == 0 {
				continue
			}

			switch h264.NALUType(nalu[0] & 0x1F) {
			case h264.NALUTypeSPS:
				if codec.SPS == nil {
					codec.SPS = copyNALU(nalu)
				}

			case h264.NALUTypePPS:
				if codec.PPS == nil {
					codec.PPS = copyNALU(nalu)
				}
			}
		}

	case *fmp4.CodecH265:
		for _, nalu := range au {
			if len(nalu) == 0 {
				continue
			}

			switch h265.NALUType((nalu[0] >> 1) & 0b111111) {
			case h265.NALUType_VPS_NUT:
				if codec.VPS == nil {
					codec.VPS = copyNALU(nalu)
				}

			case h265.NALUType_SPS_NUT:
				if codec.SPS == nil {
					codec.SPS = copyNALU(nalu)
				}

			case h265.NALUType_PPS_NUT:
				if codec.PPS == nil {
					codec.PPS = copyNALU(nalu)
				}
			}
		}
	}
}

// probeTracks reads the stream until the parameters of every track are known.
// Tracks whose parameters are never found are discarded.
func probeTracks(br io.Reader, parent logger.Writer) ([]*probedTrack, error) {
	r, err := mpegts.NewReader(br)
	if err != nil {
		return nil, err
	}

	r.OnDecodeError(func(err error) {
		parent.Log(logger.Debug, "probe: %v", err)
	})

	var probes []*trackProbe

	allReady := func() bool {
		for _, tp := range probes {
			if !tp.ready() {
				return false
			}
		}
		return true
	}

	for _, track := range r.Tracks() {
		tp := newTrackProbe(track)
		if tp == nil {
			parent.Log(logger.Warn, "skipping track with PID %d (unsupported codec %T)", track.PID, track.Codec)
			continue
		}

		if track.Codec.IsVideo() {
			r.OnDataH26x(track, func(_ int64, _ int64, au [][]byte) error {
				tp.onH26x(au)
				if allReady() {
					return errProbeComplete
				}
				return nil
			})
		}

		probes = append(probes, tp)
	}

	if !allReady() {
		for {
			err = r.Read()
			if err != nil {
				if errors.Is(err, errProbeComplete) || errors.Is(err, astits.ErrNoMorePackets) {
					break
				}
				return nil, err
			}
		}
	}

	var ret []*probedTrack //nolint:prealloc

	for _, tp := range probes {
		if !tp.ready() {
			parent.Log(logger.Warn, "skipping track with PID %d (parameters not found)", tp.track.PID)
			continue
		}

		ret = append(ret, &probedTrack{
			ts:     tp.track,
			format: tp.format,
		})
	}

	if ret == nil {
		return nil, errNoTracks
	}

	return ret, nil
}

func (pt *probedTrack) String() string {
	return fmt.Sprintf("PID %d (%s)", pt.ts.PID, pt.format.MIMEType())
}
