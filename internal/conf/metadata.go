package conf

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/bluenviron/mp4mux/internal/metadata"
)

const titleKey = "com.apple.quicktime.title"

// MetadataConf is the metadata parameter.
type MetadataConf struct {
	Title        string            `json:"title"`
	Latitude     *float64          `json:"latitude"`
	Longitude    *float64          `json:"longitude"`
	CreationTime string            `json:"creationTime"`
	XMPFile      string            `json:"xmpFile"`
	Keys         map[string]string `json:"keys"`

	// remove locations from the output, including the ones added by the muxer user.
	StripLocation bool `json:"stripLocation"`
}

func (c *MetadataConf) validate() error {
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}

	if c.Latitude != nil {
		if *c.Latitude < -90 || *c.Latitude > 90 {
			return fmt.Errorf("invalid latitude: %v", *c.Latitude)
		}
		if *c.Longitude < -180 || *c.Longitude > 180 {
			return fmt.Errorf("invalid longitude: %v", *c.Longitude)
		}
	}

	if c.CreationTime != "" && c.CreationTime != "now" {
		_, err := time.Parse(time.RFC3339, c.CreationTime)
		if err != nil {
			return fmt.Errorf("invalid creation time: %w", err)
		}
	}

	if c.StripLocation && c.Latitude != nil {
		return fmt.Errorf("'stripLocation' and 'latitude' cannot be used together")
	}

	return nil
}

// Entries returns the metadata entries described by the configuration.
func (c *MetadataConf) Entries(now time.Time) ([]metadata.Entry, error) {
	var ret []metadata.Entry

	if c.Title != "" {
		ret = append(ret, metadata.NewMdtaString(titleKey, c.Title))
	}

	for _, k := range slices.Sorted(maps.Keys(c.Keys)) {
		ret = append(ret, metadata.NewMdtaString(k, c.Keys[k]))
	}

	if c.Latitude != nil {
		ret = append(ret, metadata.Location{
			Latitude:  float32(*c.Latitude),
			Longitude: float32(*c.Longitude),
		})
	}

	switch c.CreationTime {
	case "":

	case "now":
		ret = append(ret, metadata.Timestamp{Creation: now, Modification: now})

	default:
		t, err := time.Parse(time.RFC3339, c.CreationTime)
		if err != nil {
			return nil, err
		}
		ret = append(ret, metadata.Timestamp{Creation: t, Modification: now})
	}

	if c.XMPFile != "" {
		byts, err := os.ReadFile(c.XMPFile)
		if err != nil {
			return nil, err
		}
		ret = append(ret, metadata.XMP{Data: byts})
	}

	return ret, nil
}
