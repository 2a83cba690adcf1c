// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bluenviron/mp4mux/internal/conf/env"
	"github.com/bluenviron/mp4mux/internal/conf/yamlwrapper"
	"github.com/bluenviron/mp4mux/internal/logger"
)

const envPrefix = "MP4MUX"

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is a configuration.
type Conf struct {
	// general
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogFile         string          `json:"logFile"`

	// output
	Fragmented       bool           `json:"fragmented"`
	FragmentDuration StringDuration `json:"fragmentDuration"`
	MaxSampleSize    StringSize     `json:"maxSampleSize"`

	// metadata
	Metadata MetadataConf `json:"metadata"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "mp4mux.log"
	conf.FragmentDuration = StringDuration(2 * time.Second)
	conf.MaxSampleSize = 8 * 1024 * 1024
}

// Load loads a Conf.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = env.Load(envPrefix, conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			conf.setDefaults()
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	if len(conf.LogDestinations) == 0 {
		return fmt.Errorf("at least one log destination must be set")
	}

	if conf.FragmentDuration < 0 {
		return fmt.Errorf("'fragmentDuration' must not be negative")
	}

	if conf.MaxSampleSize == 0 {
		return fmt.Errorf("'maxSampleSize' must be greater than zero")
	}

	err := conf.Metadata.validate()
	if err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler. It is used to set default values.
func (conf *Conf) UnmarshalJSON(b []byte) error {
	conf.setDefaults()

	type alias Conf
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	return d.Decode((*alias)(conf))
}
