package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/pkg/codecs/opus"
	"github.com/bluenviron/mediacommon/pkg/formats/mpegts"

	"github.com/bluenviron/mp4mux/internal/conf"
	"github.com/bluenviron/mp4mux/internal/logger"
	"github.com/bluenviron/mp4mux/internal/muxer"
)

func filterH264Params(au [][]byte) [][]byte {
	var ret [][]byte

	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}

		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeAccessUnitDelimiter:
			continue
		}

		ret = append(ret, nalu)
	}

	return ret
}

func filterH265Params(au [][]byte) [][]byte {
	var ret [][]byte

	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}

		switch h265.NALUType((nalu[0] >> 1) & 0b111111) {
		case h265.NALUType_VPS_NUT, h265.NALUType_SPS_NUT, h265.NALUType_PPS_NUT, h265.NALUType_AUD_NUT:
			continue
		}

		ret = append(ret, nalu)
	}

	return ret
}

type remuxerStats struct {
	samples        uint64
	skippedSamples uint64
}

// remuxer converts a MPEG-TS file into a MP4 file.
type remuxer struct {
	ctx        context.Context
	inputPath  string
	outputPath string
	conf       *conf.Conf
	parent     logger.Writer

	input  *os.File
	tracks []*probedTrack
	m      *muxer.Muxer
	td     *mpegts.TimeDecoder
	stats  remuxerStats
}

func (r *remuxer) initialize() error {
	var err error
	r.input, err = os.Open(r.inputPath)
	if err != nil {
		return err
	}

	r.tracks, err = probeTracks(bufio.NewReader(r.input), r)
	if err != nil {
		r.input.Close()
		return fmt.Errorf("unable to read %s: %w", r.inputPath, err)
	}

	for _, track := range r.tracks {
		r.Log(logger.Debug, "found track %v", track)
	}

	entries, err := r.conf.Metadata.Entries(time.Now())
	if err != nil {
		r.input.Close()
		return err
	}

	fa := &muxer.Factory{
		MetadataProvider: &metadataProvider{
			software:      "mp4mux " + version,
			stripLocation: r.conf.Metadata.StripLocation,
		},
		OutputFragmentedMP4: r.conf.Fragmented,
		FragmentDuration:    time.Duration(r.conf.FragmentDuration),
		Parent:              r,
	}

	r.m, err = fa.Create(r.outputPath)
	if err != nil {
		r.input.Close()
		return err
	}

	r.m.AddMetadata(entries...)

	return nil
}

// Log implements logger.Writer.
func (r *remuxer) Log(level logger.Level, format string, args ...interface{}) {
	r.parent.Log(level, "[remuxer] "+format, args...)
}

func (r *remuxer) close() {
	r.input.Close()
}

func (r *remuxer) run() error {
	defer r.close()

	err := r.runInner()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.Log(logger.Info, "remuxing interrupted")
			return r.m.Close(true)
		}

		r.m.Close(true) //nolint:errcheck
		return err
	}

	err = r.m.Close(false)
	if err != nil {
		return err
	}

	r.logResult()
	return nil
}

func (r *remuxer) runInner() error {
	_, err := r.input.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}

	rd, err := mpegts.NewReader(bufio.NewReader(r.input))
	if err != nil {
		return err
	}

	rd.OnDecodeError(func(err error) {
		r.Log(logger.Warn, "%v", err)
	})

	for _, track := range r.tracks {
		trackIndex, err := r.m.AddTrack(track.format)
		if err != nil {
			return err
		}

		r.setupTrack(rd, track, trackIndex)
	}

	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		err := rd.Read()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				return nil
			}
			return err
		}
	}
}

func (r *remuxer) decodeTime(t int64) time.Duration {
	if r.td == nil {
		r.td = mpegts.NewTimeDecoder(t)
	}
	return r.td.Decode(t)
}

func (r *remuxer) setupTrack(rd *mpegts.Reader, track *probedTrack, trackIndex int) {
	switch codec := track.ts.Codec.(type) {
	case *mpegts.CodecH264:
		rd.OnDataH26x(track.ts, func(pts int64, _ int64, au [][]byte) error {
			randomAccess := h264.IDRPresent(au)

			au = filterH264Params(au)
			if au == nil {
				return nil
			}

			return r.writeVideo(trackIndex, r.decodeTime(pts), au, randomAccess)
		})

	case *mpegts.CodecH265:
		rd.OnDataH26x(track.ts, func(pts int64, _ int64, au [][]byte) error {
			randomAccess := h265.IsRandomAccess(au)

			au = filterH265Params(au)
			if au == nil {
				return nil
			}

			return r.writeVideo(trackIndex, r.decodeTime(pts), au, randomAccess)
		})

	case *mpegts.CodecMPEG4Audio:
		sampleRate := time.Duration(codec.Config.SampleRate)

		rd.OnDataMPEG4Audio(track.ts, func(pts int64, aus [][]byte) error {
			base := r.decodeTime(pts)

			for i, au := range aus {
				auPTS := base + time.Duration(i)*mpeg4audio.SamplesPerAccessUnit*
					time.Second/sampleRate

				err := r.writeSample(trackIndex, au, auPTS, muxer.BufferFlagKeyFrame)
				if err != nil {
					return err
				}
			}
			return nil
		})

	case *mpegts.CodecOpus:
		rd.OnDataOpus(track.ts, func(pts int64, packets [][]byte) error {
			packetPTS := r.decodeTime(pts)

			for _, packet := range packets {
				err := r.writeSample(trackIndex, packet, packetPTS, muxer.BufferFlagKeyFrame)
				if err != nil {
					return err
				}
				packetPTS += opus.PacketDuration(packet)
			}
			return nil
		})
	}
}

func (r *remuxer) writeVideo(trackIndex int, pts time.Duration, au [][]byte, randomAccess bool) error {
	avcc, err := h264.AVCCMarshal(au)
	if err != nil {
		r.Log(logger.Warn, "unable to encode access unit: %v", err)
		return nil
	}

	var flags muxer.BufferFlags
	if randomAccess {
		flags |= muxer.BufferFlagKeyFrame
	}

	return r.writeSample(trackIndex, avcc, pts, flags)
}

func (r *remuxer) writeSample(trackIndex int, data []byte, pts time.Duration, flags muxer.BufferFlags) error {
	if uint64(len(data)) > uint64(r.conf.MaxSampleSize) {
		r.Log(logger.Warn, "skipping sample of track %d with size %s (maximum is %s)",
			trackIndex, bytefmt.ByteSize(uint64(len(data))), bytefmt.ByteSize(uint64(r.conf.MaxSampleSize)))
		r.stats.skippedSamples++
		return nil
	}

	err := r.m.WriteSampleData(trackIndex, data, pts.Microseconds(), flags)
	if err != nil {
		return err
	}

	r.stats.samples++
	return nil
}

func (r *remuxer) logResult() {
	fi, err := os.Stat(r.outputPath)
	if err != nil {
		r.Log(logger.Warn, "%v", err)
		return
	}

	r.Log(logger.Info, "wrote %s (%d samples, %s)", r.outputPath, r.stats.samples,
		bytefmt.ByteSize(uint64(fi.Size())))

	if r.stats.skippedSamples != 0 {
		r.Log(logger.Warn, "%d samples were skipped", r.stats.skippedSamples)
	}
}
