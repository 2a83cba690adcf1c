package metadata

import (
	"math"
	"time"
)

// range of times that fit in the 32-bit creation and modification fields,
// expressed in seconds since 1904-01-01.
var (
	minTimestamp = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTimestamp = minTimestamp.Add(math.MaxUint32 * time.Second)
)

func timeInRange(t time.Time) bool {
	return !t.Before(minTimestamp) && !t.After(maxTimestamp)
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// IsSupported checks whether an entry can be stored in a MP4 container.
func IsSupported(e Entry) bool {
	switch e := e.(type) {
	case Orientation:
		return e.Degrees >= 0 && e.Degrees < 360 && (e.Degrees%90) == 0

	case Location:
		return isFinite(e.Latitude) && isFinite(e.Longitude) &&
			e.Latitude >= -90 && e.Latitude <= 90 &&
			e.Longitude >= -180 && e.Longitude <= 180

	case Timestamp:
		return !e.Creation.IsZero() && timeInRange(e.Creation) &&
			(e.Modification.IsZero() || timeInRange(e.Modification))

	case XMP:
		return len(e.Data) != 0

	case Mdta:
		if e.Name == "" {
			return false
		}

		switch e.Type {
		case MdtaTypeBinary, MdtaTypeString:
			return true

		case MdtaTypeFloat32:
			return len(e.Value) == 4
		}
	}

	return false
}
