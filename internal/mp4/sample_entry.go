package mp4

import (
	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/pkg/codecs/av1"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
)

// Specification: ISO 14496-1, Table 5
const (
	objectTypeIndicationAudioISO14496part3 = 0x40
)

// Specification: ISO 14496-1, Table 6
const (
	streamTypeAudioStream = 0x05
)

func boolToUint8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func visualSampleEntry(typ gomp4.BoxType, params *codecParams) *gomp4.VisualSampleEntry {
	return &gomp4.VisualSampleEntry{
		SampleEntry: gomp4.SampleEntry{
			AnyTypeBox: gomp4.AnyTypeBox{
				Type: typ,
			},
			DataReferenceIndex: 1,
		},
		Width:           uint16(params.width),
		Height:          uint16(params.height),
		Horizresolution: 4718592,
		Vertresolution:  4718592,
		FrameCount:      1,
		Depth:           24,
		PreDefined3:     -1,
	}
}

// writeSampleEntry writes the only entry of a stsd box.
func writeSampleEntry(w *boxWriter, trackID int, codec fmp4.Codec, params *codecParams) error {
	/*
		|avc1| (H264)
		|    |avcC|
		|hvc1| (H265)
		|    |hvcC|
		|av01| (AV1)
		|    |av1C|
		|mp4a| (MPEG-4 audio)
		|    |esds|
		|Opus| (Opus)
		|    |dOps|
	*/

	var err error

	switch codec := codec.(type) {
	case *fmp4.CodecH264:
		_, err = w.writeBoxStart(visualSampleEntry(gomp4.BoxTypeAvc1(), params)) // <avc1>
		if err != nil {
			return err
		}

		_, err = w.writeBox(&gomp4.AVCDecoderConfiguration{ // <avcC/>
			AnyTypeBox: gomp4.AnyTypeBox{
				Type: gomp4.BoxTypeAvcC(),
			},
			ConfigurationVersion:       1,
			Profile:                    params.h264SPS.ProfileIdc,
			ProfileCompatibility:       codec.SPS[2],
			Level:                      params.h264SPS.LevelIdc,
			LengthSizeMinusOne:         3,
			NumOfSequenceParameterSets: 1,
			SequenceParameterSets: []gomp4.AVCParameterSet{{
				Length:  uint16(len(codec.SPS)),
				NALUnit: codec.SPS,
			}},
			NumOfPictureParameterSets: 1,
			PictureParameterSets: []gomp4.AVCParameterSet{{
				Length:  uint16(len(codec.PPS)),
				NALUnit: codec.PPS,
			}},
		})
		if err != nil {
			return err
		}

	case *fmp4.CodecH265:
		_, err = w.writeBoxStart(visualSampleEntry(gomp4.BoxTypeHvc1(), params)) // <hvc1>
		if err != nil {
			return err
		}

		var constraints [6]uint8
		if len(codec.SPS) >= 13 {
			copy(constraints[:], codec.SPS[7:13])
		}

		ptl := params.h265SPS.ProfileTierLevel

		_, err = w.writeBox(&gomp4.HvcC{ // <hvcC/>
			ConfigurationVersion:        1,
			GeneralProfileIdc:           ptl.GeneralProfileIdc,
			GeneralProfileCompatibility: ptl.GeneralProfileCompatibilityFlag,
			GeneralConstraintIndicator:  constraints,
			GeneralLevelIdc:             ptl.GeneralLevelIdc,
			ChromaFormatIdc:             uint8(params.h265SPS.ChromaFormatIdc),
			BitDepthLumaMinus8:          uint8(params.h265SPS.BitDepthLumaMinus8),
			BitDepthChromaMinus8:        uint8(params.h265SPS.BitDepthChromaMinus8),
			NumTemporalLayers:           1,
			LengthSizeMinusOne:          3,
			NumOfNaluArrays:             3,
			NaluArrays: []gomp4.HEVCNaluArray{
				hevcNaluArray(h265.NALUType_VPS_NUT, codec.VPS),
				hevcNaluArray(h265.NALUType_SPS_NUT, codec.SPS),
				hevcNaluArray(h265.NALUType_PPS_NUT, codec.PPS),
			},
		})
		if err != nil {
			return err
		}

	case *fmp4.CodecAV1:
		_, err = w.writeBoxStart(visualSampleEntry(gomp4.BoxTypeAv01(), params)) // <av01>
		if err != nil {
			return err
		}

		var bs []byte
		bs, err = av1.BitstreamMarshal([][]byte{codec.SequenceHeader})
		if err != nil {
			return err
		}

		sh := params.av1SequenceHeader

		_, err = w.writeBox(&gomp4.Av1C{ // <av1C/>
			Marker:               1,
			Version:              1,
			SeqProfile:           sh.SeqProfile,
			SeqLevelIdx0:         sh.SeqLevelIdx[0],
			SeqTier0:             boolToUint8(sh.SeqTier[0]),
			HighBitdepth:         boolToUint8(sh.ColorConfig.HighBitDepth),
			TwelveBit:            boolToUint8(sh.ColorConfig.TwelveBit),
			Monochrome:           boolToUint8(sh.ColorConfig.MonoChrome),
			ChromaSubsamplingX:   boolToUint8(sh.ColorConfig.SubsamplingX),
			ChromaSubsamplingY:   boolToUint8(sh.ColorConfig.SubsamplingY),
			ChromaSamplePosition: uint8(sh.ColorConfig.ChromaSamplePosition),
			ConfigOBUs:           bs,
		})
		if err != nil {
			return err
		}

	case *fmp4.CodecMPEG4Audio:
		_, err = w.writeBoxStart(&gomp4.AudioSampleEntry{ // <mp4a>
			SampleEntry: gomp4.SampleEntry{
				AnyTypeBox: gomp4.AnyTypeBox{
					Type: gomp4.BoxTypeMp4a(),
				},
				DataReferenceIndex: 1,
			},
			ChannelCount: uint16(codec.ChannelCount),
			SampleSize:   16,
			SampleRate:   uint32(codec.SampleRate * 65536),
		})
		if err != nil {
			return err
		}

		var enc []byte
		enc, err = codec.Config.Marshal()
		if err != nil {
			return err
		}

		_, err = w.writeBox(&gomp4.Esds{ // <esds/>
			Descriptors: []gomp4.Descriptor{
				{
					Tag:  gomp4.ESDescrTag,
					Size: 32 + uint32(len(enc)),
					ESDescriptor: &gomp4.ESDescriptor{
						ESID: uint16(trackID),
					},
				},
				{
					Tag:  gomp4.DecoderConfigDescrTag,
					Size: 18 + uint32(len(enc)),
					DecoderConfigDescriptor: &gomp4.DecoderConfigDescriptor{
						ObjectTypeIndication: objectTypeIndicationAudioISO14496part3,
						StreamType:           streamTypeAudioStream,
						Reserved:             true,
						MaxBitrate:           128825,
						AvgBitrate:           128825,
					},
				},
				{
					Tag:  gomp4.DecSpecificInfoTag,
					Size: uint32(len(enc)),
					Data: enc,
				},
				{
					Tag:  gomp4.SLConfigDescrTag,
					Size: 1,
					Data: []byte{0x02},
				},
			},
		})
		if err != nil {
			return err
		}

	case *fmp4.CodecOpus:
		_, err = w.writeBoxStart(&gomp4.AudioSampleEntry{ // <Opus>
			SampleEntry: gomp4.SampleEntry{
				AnyTypeBox: gomp4.AnyTypeBox{
					Type: gomp4.BoxTypeOpus(),
				},
				DataReferenceIndex: 1,
			},
			ChannelCount: uint16(codec.ChannelCount),
			SampleSize:   16,
			SampleRate:   48000 * 65536,
		})
		if err != nil {
			return err
		}

		_, err = w.writeBox(&gomp4.DOps{ // <dOps/>
			OutputChannelCount: uint8(codec.ChannelCount),
			PreSkip:            312,
			InputSampleRate:    48000,
		})
		if err != nil {
			return err
		}

	default:
		return ErrUnsupportedCodec
	}

	return w.writeBoxEnd() // </*>
}

func hevcNaluArray(typ h265.NALUType, nalu []byte) gomp4.HEVCNaluArray {
	return gomp4.HEVCNaluArray{
		NaluType: byte(typ),
		NumNalus: 1,
		Nalus: []gomp4.HEVCNalu{{
			Length:  uint16(len(nalu)),
			NALUnit: nalu,
		}},
	}
}
