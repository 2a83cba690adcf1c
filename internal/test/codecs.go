package test

import (
	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
)

// CodecH264 is a test H264 codec.
var CodecH264 = &fmp4.CodecH264{
	SPS: []byte{ // 1920x1080 baseline
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20,
	},
	PPS: []byte{0x08, 0x06, 0x07, 0x08},
}

// CodecH265 is a test H265 codec.
var CodecH265 = &fmp4.CodecH265{
	VPS: []byte{0x01, 0x02, 0x03, 0x04},
	SPS: []byte{
		0x42, 0x01, 0x01, 0x01, 0x60, 0x00, 0x00, 0x03,
		0x00, 0x90, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03,
		0x00, 0x78, 0xa0, 0x03, 0xc0, 0x80, 0x10, 0xe5,
		0x96, 0x66, 0x69, 0x24, 0xca, 0xe0, 0x10, 0x00,
		0x00, 0x03, 0x00, 0x10, 0x00, 0x00, 0x03, 0x01,
		0xe0, 0x80,
	},
	PPS: []byte{0x08},
}

// CodecAV1 is a test AV1 codec.
var CodecAV1 = &fmp4.CodecAV1{
	SequenceHeader: []byte{
		8, 0, 0, 0, 66, 167, 191, 228, 96, 13, 0, 64,
	},
}

// CodecMPEG4Audio is a test MPEG-4 audio codec.
var CodecMPEG4Audio = &fmp4.CodecMPEG4Audio{
	Config: mpeg4audio.Config{
		Type:         2,
		SampleRate:   44100,
		ChannelCount: 2,
	},
}

// CodecOpus is a test Opus codec.
var CodecOpus = &fmp4.CodecOpus{
	ChannelCount: 2,
}
