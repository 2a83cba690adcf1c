package mp4

import (
	"bytes"
	"testing"
	"time"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4/seekablebuffer"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mp4mux/internal/metadata"
	"github.com/bluenviron/mp4mux/internal/test"
)

func topLevelBoxes(t *testing.T, byts []byte) []gomp4.BoxInfo {
	var ret []gomp4.BoxInfo

	_, err := gomp4.ReadBoxStructure(bytes.NewReader(byts), func(h *gomp4.ReadHandle) (interface{}, error) {
		ret = append(ret, h.BoxInfo)
		return nil, nil
	})
	require.NoError(t, err)

	return ret
}

func boxTypes(bis []gomp4.BoxInfo) []string {
	ret := make([]string, len(bis))
	for i, bi := range bis {
		ret[i] = bi.Type.String()
	}
	return ret
}

func writeVideoSamples(t *testing.T, w *FragmentedWriter, track TrackToken, count int, after func(i int)) {
	for i := 0; i < count; i++ {
		flags := SampleFlags(0)
		if i%2 == 0 {
			flags = SampleFlagSync
		}

		err := w.WriteSample(track, []byte{1, 2, byte(i)}, SampleInfo{
			PresentationTimeUs: int64(i) * 500000,
			Size:               3,
			Flags:              flags,
		})
		require.NoError(t, err)

		if after != nil {
			after(i)
		}
	}
}

func TestFragmentedWriter(t *testing.T) {
	var buf seekablebuffer.Buffer

	w := &FragmentedWriter{
		W:                &buf,
		FragmentDuration: 1 * time.Second,
		Parent:           test.NilLogger,
	}
	err := w.Initialize()
	require.NoError(t, err)

	track, err := w.AddTrack(&Format{Codec: test.CodecH264})
	require.NoError(t, err)

	writeVideoSamples(t, w, track, 5, nil)

	err = w.Close()
	require.NoError(t, err)

	byts := buf.Bytes()
	boxes := topLevelBoxes(t, byts)

	require.Equal(t, []string{
		"ftyp", "moov", "free",
		"moof", "mdat",
		"moof", "mdat",
		"moof", "mdat",
	}, boxTypes(boxes))

	var init fmp4.Init
	err = init.Unmarshal(bytes.NewReader(byts[:boxes[2].Offset]))
	require.NoError(t, err)
	require.Equal(t, []*fmp4.InitTrack{{
		ID:        1,
		TimeScale: 90000,
		Codec:     test.CodecH264,
	}}, init.Tracks)

	var parts fmp4.Parts
	err = parts.Unmarshal(byts[boxes[3].Offset:])
	require.NoError(t, err)

	require.Equal(t, fmp4.Parts{
		{
			SequenceNumber: 1,
			Tracks: []*fmp4.PartTrack{{
				ID:       1,
				BaseTime: 0,
				Samples: []*fmp4.PartSample{
					{Duration: 45000, Payload: []byte{1, 2, 0}},
					{Duration: 45000, IsNonSyncSample: true, Payload: []byte{1, 2, 1}},
				},
			}},
		},
		{
			SequenceNumber: 2,
			Tracks: []*fmp4.PartTrack{{
				ID:       1,
				BaseTime: 90000,
				Samples: []*fmp4.PartSample{
					{Duration: 45000, Payload: []byte{1, 2, 2}},
					{Duration: 45000, IsNonSyncSample: true, Payload: []byte{1, 2, 3}},
				},
			}},
		},
		{
			SequenceNumber: 3,
			Tracks: []*fmp4.PartTrack{{
				ID:       1,
				BaseTime: 180000,
				Samples: []*fmp4.PartSample{
					{Duration: 45000, Payload: []byte{1, 2, 4}},
				},
			}},
		},
	}, parts)
}

func TestFragmentedWriterAudioFollowsVideo(t *testing.T) {
	var buf seekablebuffer.Buffer

	w := &FragmentedWriter{
		W:                &buf,
		FragmentDuration: 1 * time.Second,
		Parent:           test.NilLogger,
	}
	err := w.Initialize()
	require.NoError(t, err)

	videoTrack, err := w.AddTrack(&Format{Codec: test.CodecH264})
	require.NoError(t, err)

	audioTrack, err := w.AddTrack(&Format{Codec: test.CodecOpus})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		err = w.WriteSample(audioTrack, []byte{3, byte(i)}, SampleInfo{
			PresentationTimeUs: int64(i) * 250000,
			Size:               2,
			Flags:              SampleFlagSync,
		})
		require.NoError(t, err)

		if i%2 == 0 {
			err = w.WriteSample(videoTrack, []byte{1, byte(i)}, SampleInfo{
				PresentationTimeUs: int64(i) * 250000,
				Size:               2,
				Flags:              SampleFlagSync,
			})
			require.NoError(t, err)
		}
	}

	err = w.Close()
	require.NoError(t, err)

	byts := buf.Bytes()
	boxes := topLevelBoxes(t, byts)

	var init fmp4.Init
	err = init.Unmarshal(bytes.NewReader(byts[:boxes[2].Offset]))
	require.NoError(t, err)
	require.Len(t, init.Tracks, 2)
	require.Equal(t, &fmp4.CodecOpus{ChannelCount: 2}, init.Tracks[1].Codec)
	require.Equal(t, uint32(48000), init.Tracks[1].TimeScale)

	var parts fmp4.Parts
	err = parts.Unmarshal(byts[boxes[3].Offset:])
	require.NoError(t, err)
	require.Len(t, parts, 2)

	for i, part := range parts {
		require.Equal(t, uint32(i+1), part.SequenceNumber)
		require.Len(t, part.Tracks, 2)
	}

	// fragments are cut on video sync samples only.
	require.Equal(t, 2, parts[0].Tracks[0].ID)
	require.Len(t, parts[0].Tracks[0].Samples, 4)
	require.Equal(t, 1, parts[0].Tracks[1].ID)
	require.Len(t, parts[0].Tracks[1].Samples, 2)
	require.Equal(t, uint64(0), parts[0].Tracks[0].BaseTime)
	require.Equal(t, uint64(0), parts[0].Tracks[1].BaseTime)

	require.Len(t, parts[1].Tracks[0].Samples, 4)
	require.Len(t, parts[1].Tracks[1].Samples, 2)
	require.Equal(t, uint64(48000), parts[1].Tracks[0].BaseTime)
	require.Equal(t, uint64(90000), parts[1].Tracks[1].BaseTime)
}

func TestFragmentedWriterLateMetadata(t *testing.T) {
	var buf seekablebuffer.Buffer

	w := &FragmentedWriter{
		W:                &buf,
		FragmentDuration: 1 * time.Second,
		Parent:           test.NilLogger,
	}
	err := w.Initialize()
	require.NoError(t, err)

	track, err := w.AddTrack(&Format{Codec: test.CodecH264})
	require.NoError(t, err)

	writeVideoSamples(t, w, track, 5, func(i int) {
		if i == 3 {
			w.AddMetadata(metadata.Orientation{Degrees: 270})
			w.AddMetadata(metadata.Location{Latitude: 10, Longitude: 20})
			w.AddMetadata(metadata.NewMdtaFloat32("com.example.fps", 30))
		}
	})

	_, err = w.AddTrack(&Format{Codec: test.CodecOpus})
	require.ErrorIs(t, err, ErrTracksLocked)

	err = w.Close()
	require.NoError(t, err)

	byts := buf.Bytes()
	boxes := topLevelBoxes(t, byts)

	require.Equal(t, "free", boxes[2].Type.String())
	require.Equal(t, "moof", boxes[3].Type.String())
	require.Equal(t, boxes[3].Offset, boxes[2].Offset+boxes[2].Size)
	require.Less(t, boxes[2].Size, uint64(initReservedSpace))

	tkhd := extractBoxes(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeTkhd())[0].(*gomp4.Tkhd)
	require.Equal(t, orientationMatrix(270), tkhd.Matrix)

	locs := extractRawPayloads(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeUdta(), boxTypeLocation)
	require.Len(t, locs, 1)
	require.Equal(t, "+10.0000+020.0000/", string(locs[0][4:]))

	keys := extractBoxes(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeMeta(), gomp4.BoxTypeKeys())
	require.Len(t, keys, 1)
	require.Equal(t, []byte("com.example.fps"), keys[0].(*gomp4.Keys).Entries[0].KeyValue)

	var init fmp4.Init
	err = init.Unmarshal(bytes.NewReader(byts[:boxes[2].Offset]))
	require.NoError(t, err)
	require.Len(t, init.Tracks, 1)

	var parts fmp4.Parts
	err = parts.Unmarshal(byts[boxes[3].Offset:])
	require.NoError(t, err)
	require.Len(t, parts, 3)
}

func TestFragmentedWriterMetadataOverflow(t *testing.T) {
	var buf seekablebuffer.Buffer

	w := &FragmentedWriter{
		W:                &buf,
		FragmentDuration: 1 * time.Second,
		Parent:           test.NilLogger,
	}
	err := w.Initialize()
	require.NoError(t, err)

	track, err := w.AddTrack(&Format{Codec: test.CodecH264})
	require.NoError(t, err)

	writeVideoSamples(t, w, track, 3, nil)

	before := append([]byte(nil), buf.Bytes()[:topLevelBoxes(t, buf.Bytes())[2].Offset]...)

	w.AddMetadata(metadata.XMP{Data: bytes.Repeat([]byte{'x'}, 2*initReservedSpace)})

	err = w.Close()
	require.NoError(t, err)

	// the initialization segment is left untouched.
	require.Equal(t, before, buf.Bytes()[:len(before)])
}

func TestFragmentedWriterNoSamples(t *testing.T) {
	var buf seekablebuffer.Buffer

	w := &FragmentedWriter{
		W:      &buf,
		Parent: test.NilLogger,
	}
	err := w.Initialize()
	require.NoError(t, err)
	require.Equal(t, defaultFragmentDuration, w.FragmentDuration)

	_, err = w.AddTrack(&Format{Codec: test.CodecMPEG4Audio})
	require.NoError(t, err)

	w.AddMetadata(metadata.Timestamp{Creation: time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)})

	err = w.Close()
	require.NoError(t, err)

	byts := buf.Bytes()
	require.Equal(t, []string{"ftyp", "moov", "free"}, boxTypes(topLevelBoxes(t, byts)))

	mvhd := extractBoxes(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeMvhd())[0].(*gomp4.Mvhd)
	require.Equal(t, uint32(time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC).Unix()+epoch1904Offset),
		mvhd.CreationTimeV0)
}

func TestFragmentedWriterErrors(t *testing.T) {
	t.Run("invalid fragment duration", func(t *testing.T) {
		w := &FragmentedWriter{
			W:                &seekablebuffer.Buffer{},
			FragmentDuration: -1,
			Parent:           test.NilLogger,
		}
		err := w.Initialize()
		require.Error(t, err)
	})

	t.Run("no tracks", func(t *testing.T) {
		w := &FragmentedWriter{
			W:      &seekablebuffer.Buffer{},
			Parent: test.NilLogger,
		}
		err := w.Initialize()
		require.NoError(t, err)

		err = w.Close()
		require.ErrorIs(t, err, ErrNoTracks)
	})

	t.Run("foreign token", func(t *testing.T) {
		w := &FragmentedWriter{
			W:      &seekablebuffer.Buffer{},
			Parent: test.NilLogger,
		}
		err := w.Initialize()
		require.NoError(t, err)

		err = w.WriteSample(&progressiveTrack{}, []byte{1}, SampleInfo{Size: 1})
		require.ErrorIs(t, err, ErrForeignToken)
	})

	t.Run("track ended", func(t *testing.T) {
		w := &FragmentedWriter{
			W:      &seekablebuffer.Buffer{},
			Parent: test.NilLogger,
		}
		err := w.Initialize()
		require.NoError(t, err)

		track, err := w.AddTrack(&Format{Codec: test.CodecOpus})
		require.NoError(t, err)

		err = w.WriteSample(track, []byte{1}, SampleInfo{Size: 1, Flags: SampleFlagSync | SampleFlagEndOfStream})
		require.NoError(t, err)

		err = w.WriteSample(track, []byte{1}, SampleInfo{Size: 1, Flags: SampleFlagSync})
		require.ErrorIs(t, err, ErrTrackEnded)

		err = w.Close()
		require.NoError(t, err)

		err = w.Close()
		require.ErrorIs(t, err, ErrWriterClosed)
	})
}
