package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mp4mux/internal/logger"
	"github.com/bluenviron/mp4mux/internal/metadata"
)

func ptrOf[T any](v T) *T {
	return &v
}

func writeTempFile(t *testing.T, byts []byte) string {
	fpath := filepath.Join(t.TempDir(), "mp4mux.yml")
	err := os.WriteFile(fpath, byts, 0o644)
	require.NoError(t, err)
	return fpath
}

func TestConfDefaults(t *testing.T) {
	conf, confPath, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "", confPath)

	require.Equal(t, &Conf{
		LogLevel:         LogLevel(logger.Info),
		LogDestinations:  LogDestinations{logger.DestinationStdout},
		LogFile:          "mp4mux.log",
		FragmentDuration: StringDuration(2 * time.Second),
		MaxSampleSize:    8 * 1024 * 1024,
	}, conf)
}

func TestConfFromFile(t *testing.T) {
	fpath := writeTempFile(t, []byte("logLevel: debug\n"+
		"logDestinations: [stdout, file]\n"+
		"fragmented: yes\n"+
		"fragmentDuration: 500ms\n"+
		"maxSampleSize: 2M\n"+
		"metadata:\n"+
		"  title: my recording\n"+
		"  latitude: 45.5\n"+
		"  longitude: -122.25\n"+
		"  keys:\n"+
		"    com.example.camera: front\n"))

	conf, confPath, err := Load(fpath, nil)
	require.NoError(t, err)
	require.Equal(t, fpath, confPath)

	require.Equal(t, &Conf{
		LogLevel:         LogLevel(logger.Debug),
		LogDestinations:  LogDestinations{logger.DestinationStdout, logger.DestinationFile},
		LogFile:          "mp4mux.log",
		Fragmented:       true,
		FragmentDuration: StringDuration(500 * time.Millisecond),
		MaxSampleSize:    2 * 1024 * 1024,
		Metadata: MetadataConf{
			Title:     "my recording",
			Latitude:  ptrOf(45.5),
			Longitude: ptrOf(-122.25),
			Keys: map[string]string{
				"com.example.camera": "front",
			},
		},
	}, conf)
}

func TestConfDefaultPaths(t *testing.T) {
	fpath := writeTempFile(t, []byte("fragmented: yes\n"))

	conf, confPath, err := Load("", []string{filepath.Join(t.TempDir(), "missing.yml"), fpath})
	require.NoError(t, err)
	require.Equal(t, fpath, confPath)
	require.Equal(t, true, conf.Fragmented)
	require.Equal(t, StringDuration(2*time.Second), conf.FragmentDuration)
}

func TestConfFromEnvironment(t *testing.T) {
	t.Setenv("MP4MUX_LOGLEVEL", "warn")
	t.Setenv("MP4MUX_LOGDESTINATIONS", "file")
	t.Setenv("MP4MUX_FRAGMENTED", "true")
	t.Setenv("MP4MUX_MAXSAMPLESIZE", "1K")
	t.Setenv("MP4MUX_METADATA_LATITUDE", "10")
	t.Setenv("MP4MUX_METADATA_LONGITUDE", "20")
	t.Setenv("MP4MUX_METADATA_KEYS_ARTIST", "someone")

	fpath := writeTempFile(t, []byte("fragmented: no\n"))

	conf, _, err := Load(fpath, nil)
	require.NoError(t, err)

	require.Equal(t, LogLevel(logger.Warn), conf.LogLevel)
	require.Equal(t, LogDestinations{logger.DestinationFile}, conf.LogDestinations)
	require.Equal(t, true, conf.Fragmented)
	require.Equal(t, StringSize(1024), conf.MaxSampleSize)
	require.Equal(t, ptrOf(10.0), conf.Metadata.Latitude)
	require.Equal(t, ptrOf(20.0), conf.Metadata.Longitude)
	require.Equal(t, map[string]string{"artist": "someone"}, conf.Metadata.Keys)
}

func TestConfBareNumbers(t *testing.T) {
	t.Setenv("MP4MUX_FRAGMENTDURATION", "1.5")

	fpath := writeTempFile(t, []byte("maxSampleSize: \"4096\"\n"))

	conf, _, err := Load(fpath, nil)
	require.NoError(t, err)

	require.Equal(t, StringDuration(1500*time.Millisecond), conf.FragmentDuration)
	require.Equal(t, StringSize(4096), conf.MaxSampleSize)
}

func TestConfErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		conf string
		err  string
	}{
		{
			"unknown field",
			"unknown: yes\n",
			"json: unknown field \"unknown\"",
		},
		{
			"invalid log level",
			"logLevel: verbose\n",
			"invalid log level: 'verbose' (valid are error, warn, info, debug)",
		},
		{
			"duplicate log destination",
			"logDestinations: [file, file]\n",
			"log destination set twice",
		},
		{
			"no log destinations",
			"logDestinations: []\n",
			"at least one log destination must be set",
		},
		{
			"invalid fragment duration",
			"fragmentDuration: -1s\n",
			"'fragmentDuration' must not be negative",
		},
		{
			"invalid max sample size",
			"maxSampleSize: \"0\"\n",
			"'maxSampleSize' must be greater than zero",
		},
		{
			"latitude without longitude",
			"metadata:\n  latitude: 10\n",
			"invalid metadata: latitude and longitude must be set together",
		},
		{
			"invalid latitude",
			"metadata:\n  latitude: 100\n  longitude: 10\n",
			"invalid metadata: invalid latitude: 100",
		},
		{
			"invalid creation time",
			"metadata:\n  creationTime: yesterday\n",
			"invalid metadata: invalid creation time: " +
				"parsing time \"yesterday\" as \"2006-01-02T15:04:05Z07:00\": cannot parse \"yesterday\" as \"2006\"",
		},
		{
			"strip location with location",
			"metadata:\n  latitude: 10\n  longitude: 10\n  stripLocation: yes\n",
			"invalid metadata: 'stripLocation' and 'latitude' cannot be used together",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			fpath := writeTempFile(t, []byte(ca.conf))

			_, _, err := Load(fpath, nil)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestMetadataEntries(t *testing.T) {
	xmpPath := filepath.Join(t.TempDir(), "test.xmp")
	err := os.WriteFile(xmpPath, []byte("<x:xmpmeta/>"), 0o644)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	c := MetadataConf{
		Title:        "my recording",
		Latitude:     ptrOf(45.5),
		Longitude:    ptrOf(-122.25),
		CreationTime: "2010-01-01T00:00:00Z",
		XMPFile:      xmpPath,
		Keys: map[string]string{
			"b": "2",
			"a": "1",
		},
	}

	entries, err := c.Entries(now)
	require.NoError(t, err)

	require.Equal(t, []metadata.Entry{
		metadata.NewMdtaString("com.apple.quicktime.title", "my recording"),
		metadata.NewMdtaString("a", "1"),
		metadata.NewMdtaString("b", "2"),
		metadata.Location{Latitude: 45.5, Longitude: -122.25},
		metadata.Timestamp{
			Creation:     time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
			Modification: now,
		},
		metadata.XMP{Data: []byte("<x:xmpmeta/>")},
	}, entries)
}

func TestMetadataEntriesNow(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	c := MetadataConf{CreationTime: "now"}

	entries, err := c.Entries(now)
	require.NoError(t, err)
	require.Equal(t, []metadata.Entry{metadata.Timestamp{Creation: now, Modification: now}}, entries)
}
