package conf

import (
	"encoding/json"
	"strconv"
	"time"
)

// StringDuration is a duration that is unmarshaled from a string,
// like fragmentDuration: "2s". A bare number is read as seconds.
type StringDuration time.Duration

// MarshalJSON implements json.Marshaler.
func (d StringDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *StringDuration) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	if secs, err := strconv.ParseFloat(in, 64); err == nil {
		*d = StringDuration(secs * float64(time.Second))
		return nil
	}

	du, err := time.ParseDuration(in)
	if err != nil {
		return err
	}
	*d = StringDuration(du)

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *StringDuration) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
