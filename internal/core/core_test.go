package core

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/pkg/formats/mpegts"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mp4mux/internal/test"
)

var (
	testH265VPS = []byte{0x40, 0x01, 0x0c, 0x01}
	testH265PPS = []byte{0x44, 0x01, 0xc1}
)

func writeTS(t *testing.T, fpath string, tracks []*mpegts.Track, cb func(w *mpegts.Writer)) {
	f, err := os.Create(fpath)
	require.NoError(t, err)
	defer f.Close()

	bw := bufio.NewWriter(f)
	cb(mpegts.NewWriter(bw, tracks))

	err = bw.Flush()
	require.NoError(t, err)
}

func writeH264AAC(t *testing.T, fpath string) {
	videoTrack := &mpegts.Track{Codec: &mpegts.CodecH264{}}
	audioTrack := &mpegts.Track{Codec: &mpegts.CodecMPEG4Audio{
		Config: mpeg4audio.Config{
			Type:         2,
			SampleRate:   32000,
			ChannelCount: 2,
		},
	}}

	writeTS(t, fpath, []*mpegts.Track{videoTrack, audioTrack}, func(w *mpegts.Writer) {
		for i := 0; i < 10; i++ {
			var au [][]byte
			if (i % 5) == 0 {
				au = [][]byte{test.CodecH264.SPS, test.CodecH264.PPS, {0x65, 0x88, 0x84, 0x21}}
			} else {
				au = [][]byte{{0x41, 0x9a, 0x21}}
			}

			pts := 90000 + int64(i)*3600
			err := w.WriteH26x(videoTrack, pts, pts, (i%5) == 0, au)
			require.NoError(t, err)

			err = w.WriteMPEG4Audio(audioTrack, 90000+int64(i)*2880, [][]byte{{0x21, 0x10, 0x04, byte(i + 1)}})
			require.NoError(t, err)
		}
	})
}

func writeH265Opus(t *testing.T, fpath string) {
	videoTrack := &mpegts.Track{Codec: &mpegts.CodecH265{}}
	audioTrack := &mpegts.Track{Codec: &mpegts.CodecOpus{ChannelCount: 2}}

	writeTS(t, fpath, []*mpegts.Track{videoTrack, audioTrack}, func(w *mpegts.Writer) {
		for i := 0; i < 10; i++ {
			var au [][]byte
			if (i % 5) == 0 {
				au = [][]byte{testH265VPS, test.CodecH265.SPS, testH265PPS, {0x26, 0x01, 0xaf, 0x21}}
			} else {
				au = [][]byte{{0x02, 0x01, 0xd0, 0x21}}
			}

			pts := 90000 + int64(i)*3600
			err := w.WriteH26x(videoTrack, pts, pts, (i%5) == 0, au)
			require.NoError(t, err)

			// 20ms CELT packet
			err = w.WriteOpus(audioTrack, 90000+int64(i)*1800, [][]byte{{0xf8, 0xff, byte(i + 1)}})
			require.NoError(t, err)
		}
	})
}

func rootBoxTypes(t *testing.T, byts []byte) []string {
	var ret []string

	_, err := gomp4.ReadBoxStructure(bytes.NewReader(byts), func(h *gomp4.ReadHandle) (interface{}, error) {
		ret = append(ret, h.BoxInfo.Type.String())
		return nil, nil
	})
	require.NoError(t, err)

	return ret
}

func extractBoxes(t *testing.T, byts []byte, path ...gomp4.BoxType) []gomp4.IBox {
	bs, err := gomp4.ExtractBoxWithPayload(bytes.NewReader(byts), nil, gomp4.BoxPath(path))
	require.NoError(t, err)

	ret := make([]gomp4.IBox, len(bs))
	for i, b := range bs {
		ret[i] = b.Payload
	}
	return ret
}

func progressiveSampleSizes(t *testing.T, byts []byte) [][]uint32 {
	var ret [][]uint32

	for _, box := range extractBoxes(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
		gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsz()) {
		stsz := box.(*gomp4.Stsz)
		if stsz.SampleSize != 0 {
			sizes := make([]uint32, stsz.SampleCount)
			for i := range sizes {
				sizes[i] = stsz.SampleSize
			}
			ret = append(ret, sizes)
		} else {
			ret = append(ret, stsz.EntrySize)
		}
	}

	return ret
}

func fragmentedSampleSizes(t *testing.T, byts []byte) [][]uint32 {
	tfhds := extractBoxes(t, byts, gomp4.BoxTypeMoof(), gomp4.BoxTypeTraf(), gomp4.BoxTypeTfhd())
	truns := extractBoxes(t, byts, gomp4.BoxTypeMoof(), gomp4.BoxTypeTraf(), gomp4.BoxTypeTrun())
	require.Equal(t, len(tfhds), len(truns))

	ret := make([][]uint32, 2)

	for i, tfhd := range tfhds {
		trackID := tfhd.(*gomp4.Tfhd).TrackID
		for _, e := range truns[i].(*gomp4.Trun).Entries {
			ret[trackID-1] = append(ret[trackID-1], e.SampleSize)
		}
	}

	return ret
}

func TestCore(t *testing.T) {
	for _, ca := range []struct {
		name       string
		writeInput func(t *testing.T, fpath string)
		env        map[string]string
		fragmented bool
		sizes      [][]uint32
	}{
		{
			"h264 aac",
			writeH264AAC,
			nil,
			false,
			[][]uint32{
				{8, 7, 7, 7, 7, 8, 7, 7, 7, 7},
				{4, 4, 4, 4, 4, 4, 4, 4, 4, 4},
			},
		},
		{
			"h265 opus fragmented",
			writeH265Opus,
			map[string]string{"MP4MUX_FRAGMENTED": "yes"},
			true,
			[][]uint32{
				{8, 8, 8, 8, 8, 8, 8, 8, 8, 8},
				{3, 3, 3, 3, 3, 3, 3, 3, 3, 3},
			},
		},
		{
			"max sample size",
			writeH264AAC,
			map[string]string{"MP4MUX_MAXSAMPLESIZE": "7B"},
			false,
			[][]uint32{
				{7, 7, 7, 7, 7, 7, 7, 7},
				{4, 4, 4, 4, 4, 4, 4, 4, 4, 4},
			},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			for k, v := range ca.env {
				t.Setenv(k, v)
			}

			dir := t.TempDir()
			inPath := filepath.Join(dir, "in.ts")
			outPath := filepath.Join(dir, "out.mp4")
			logPath := filepath.Join(dir, "mp4mux.log")
			confPath := filepath.Join(dir, "mp4mux.yml")

			ca.writeInput(t, inPath)

			err := os.WriteFile(confPath, []byte("logLevel: debug\n"+
				"logDestinations: [file]\n"+
				"logFile: "+logPath+"\n"+
				"metadata:\n"+
				"  title: test recording\n"), 0o644)
			require.NoError(t, err)

			p, ok := New([]string{"-c", confPath, inPath, outPath})
			require.Equal(t, true, ok)

			err = p.Wait()
			require.NoError(t, err)

			byts, err := os.ReadFile(outPath)
			require.NoError(t, err)

			boxes := rootBoxTypes(t, byts)

			if ca.fragmented {
				require.Equal(t, []string{"ftyp", "moov", "free", "moof", "mdat"}, boxes[:5])
				require.Equal(t, ca.sizes, fragmentedSampleSizes(t, byts))
			} else {
				require.Equal(t, []string{"ftyp", "mdat", "moov"}, boxes)
				require.Equal(t, ca.sizes, progressiveSampleSizes(t, byts))
			}

			keys := extractBoxes(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeMeta(), gomp4.BoxTypeKeys())
			require.Len(t, keys, 1)

			var names []string
			for _, e := range keys[0].(*gomp4.Keys).Entries {
				names = append(names, string(e.KeyValue))
			}
			require.Equal(t, []string{"com.apple.quicktime.title", "com.apple.quicktime.software"}, names)

			logs, err := os.ReadFile(logPath)
			require.NoError(t, err)
			require.Contains(t, string(logs), "[remuxer] wrote "+outPath)
		})
	}
}

func TestCoreSyncSamples(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.ts")
	outPath := filepath.Join(dir, "out.mp4")

	writeH264AAC(t, inPath)

	p, ok := New([]string{inPath, outPath})
	require.Equal(t, true, ok)

	err := p.Wait()
	require.NoError(t, err)

	byts, err := os.ReadFile(outPath)
	require.NoError(t, err)

	stss := extractBoxes(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
		gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStss())
	require.Len(t, stss, 1)
	require.Equal(t, []uint32{1, 6}, stss[0].(*gomp4.Stss).SampleNumber)

	stts := extractBoxes(t, byts, gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
		gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStts())
	require.Len(t, stts, 2)
	require.Equal(t, []gomp4.SttsEntry{{SampleCount: 10, SampleDelta: 3600}},
		stts[0].(*gomp4.Stts).Entries)
	require.Equal(t, []gomp4.SttsEntry{{SampleCount: 10, SampleDelta: 1024}},
		stts[1].(*gomp4.Stts).Entries)
}

func TestCoreErrors(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		dir := t.TempDir()

		_, ok := New([]string{filepath.Join(dir, "missing.ts"), filepath.Join(dir, "out.mp4")})
		require.Equal(t, false, ok)
	})

	t.Run("invalid input", func(t *testing.T) {
		dir := t.TempDir()
		inPath := filepath.Join(dir, "in.ts")

		err := os.WriteFile(inPath, bytes.Repeat([]byte{1, 2, 3, 4}, 188), 0o644)
		require.NoError(t, err)

		_, ok := New([]string{inPath, filepath.Join(dir, "out.mp4")})
		require.Equal(t, false, ok)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		dir := t.TempDir()
		inPath := filepath.Join(dir, "in.ts")
		writeH264AAC(t, inPath)

		t.Setenv("MP4MUX_LOGLEVEL", "verbose")

		_, ok := New([]string{inPath, filepath.Join(dir, "out.mp4")})
		require.Equal(t, false, ok)
	})
}
