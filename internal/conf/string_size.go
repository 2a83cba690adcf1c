package conf

import (
	"encoding/json"
	"strconv"

	"code.cloudfoundry.org/bytefmt"
)

// StringSize is a size that is unmarshaled from a string,
// like maxSampleSize: "8MiB". A bare number is read as bytes.
type StringSize uint64

// MarshalJSON implements json.Marshaler.
func (s StringSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(bytefmt.ByteSize(uint64(s)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringSize) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	if v, err := strconv.ParseUint(in, 10, 64); err == nil {
		*s = StringSize(v)
		return nil
	}

	v, err := bytefmt.ToBytes(in)
	if err != nil {
		return err
	}
	*s = StringSize(v)

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (s *StringSize) UnmarshalEnv(_ string, v string) error {
	return s.UnmarshalJSON([]byte(`"` + v + `"`))
}
