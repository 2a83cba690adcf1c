package mp4

import (
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/codecs/av1"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
)

// MIME types of supported codecs.
const (
	MIMETypeVideoH264 = "video/avc"
	MIMETypeVideoH265 = "video/hevc"
	MIMETypeVideoAV1  = "video/av01"
	MIMETypeAudioAAC  = "audio/mp4a-latm"
	MIMETypeAudioOpus = "audio/opus"
)

// Format describes a track.
type Format struct {
	Codec fmp4.Codec

	// clockwise rotation of video tracks.
	RotationDegrees int

	// optional; derived from the codec when zero.
	TimeScale uint32
}

// MIMEType returns the MIME type of the codec.
func (f *Format) MIMEType() string {
	switch f.Codec.(type) {
	case *fmp4.CodecH264:
		return MIMETypeVideoH264

	case *fmp4.CodecH265:
		return MIMETypeVideoH265

	case *fmp4.CodecAV1:
		return MIMETypeVideoAV1

	case *fmp4.CodecMPEG4Audio:
		return MIMETypeAudioAAC

	case *fmp4.CodecOpus:
		return MIMETypeAudioOpus
	}
	return ""
}

// IsVideo returns whether the track is a video track.
func (f *Format) IsVideo() bool {
	return f.Codec != nil && f.Codec.IsVideo()
}

func (f *Format) timeScale() uint32 {
	if f.TimeScale != 0 {
		return f.TimeScale
	}

	switch codec := f.Codec.(type) {
	case *fmp4.CodecMPEG4Audio:
		return uint32(codec.SampleRate)

	case *fmp4.CodecOpus:
		return 48000
	}
	return 90000
}

// codecParams contains parameters extracted from the codec configuration.
type codecParams struct {
	width             int
	height            int
	h264SPS           *h264.SPS
	h265SPS           *h265.SPS
	av1SequenceHeader *av1.SequenceHeader
}

func parseCodec(codec fmp4.Codec) (*codecParams, error) {
	p := &codecParams{}

	switch codec := codec.(type) {
	case *fmp4.CodecH264:
		if len(codec.SPS) == 0 || len(codec.PPS) == 0 {
			return nil, fmt.Errorf("H264 parameters not provided")
		}

		p.h264SPS = &h264.SPS{}
		err := p.h264SPS.Unmarshal(codec.SPS)
		if err != nil {
			return nil, fmt.Errorf("unable to parse H264 SPS: %w", err)
		}

		p.width = p.h264SPS.Width()
		p.height = p.h264SPS.Height()

	case *fmp4.CodecH265:
		if len(codec.VPS) == 0 || len(codec.SPS) == 0 || len(codec.PPS) == 0 {
			return nil, fmt.Errorf("H265 parameters not provided")
		}

		p.h265SPS = &h265.SPS{}
		err := p.h265SPS.Unmarshal(codec.SPS)
		if err != nil {
			return nil, fmt.Errorf("unable to parse H265 SPS: %w", err)
		}

		p.width = p.h265SPS.Width()
		p.height = p.h265SPS.Height()

	case *fmp4.CodecAV1:
		if len(codec.SequenceHeader) == 0 {
			return nil, fmt.Errorf("AV1 sequence header not provided")
		}

		p.av1SequenceHeader = &av1.SequenceHeader{}
		err := p.av1SequenceHeader.Unmarshal(codec.SequenceHeader)
		if err != nil {
			return nil, fmt.Errorf("unable to parse AV1 sequence header: %w", err)
		}

		p.width = p.av1SequenceHeader.Width()
		p.height = p.av1SequenceHeader.Height()

	case *fmp4.CodecMPEG4Audio:
		if codec.SampleRate == 0 || codec.ChannelCount == 0 {
			return nil, fmt.Errorf("MPEG-4 audio config not provided")
		}

		_, err := codec.Config.Marshal()
		if err != nil {
			return nil, fmt.Errorf("invalid MPEG-4 audio config: %w", err)
		}

	case *fmp4.CodecOpus:
		if codec.ChannelCount <= 0 {
			return nil, fmt.Errorf("Opus channel count not provided")
		}

	case nil:
		return nil, fmt.Errorf("%w: codec not provided", ErrUnsupportedCodec)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCodec, codec)
	}

	return p, nil
}
