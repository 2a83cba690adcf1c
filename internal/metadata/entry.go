// Package metadata contains container-level metadata entries.
package metadata

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Entry is a container-level metadata entry.
// Two entries are equal when their keys are equal.
type Entry interface {
	// Key returns a canonical encoding of the kind and the value.
	Key() string
	String() string
}

// Orientation is the clockwise rotation that must be applied to video tracks.
type Orientation struct {
	Degrees int
}

// Key implements Entry.
func (e Orientation) Key() string {
	return "orientation:" + strconv.Itoa(e.Degrees)
}

func (e Orientation) String() string {
	return fmt.Sprintf("orientation (%d°)", e.Degrees)
}

// Location is the place where the recording was made.
type Location struct {
	Latitude  float32
	Longitude float32
}

// Key implements Entry.
func (e Location) Key() string {
	return "location:" + strconv.FormatUint(uint64(math.Float32bits(e.Latitude)), 16) +
		":" + strconv.FormatUint(uint64(math.Float32bits(e.Longitude)), 16)
}

func (e Location) String() string {
	return fmt.Sprintf("location (%.4f, %.4f)", e.Latitude, e.Longitude)
}

// Timestamp contains the creation and modification time of the recording.
type Timestamp struct {
	Creation     time.Time
	Modification time.Time
}

// Key implements Entry.
func (e Timestamp) Key() string {
	return "timestamp:" + strconv.FormatInt(e.Creation.UnixNano(), 10) +
		":" + strconv.FormatInt(e.Modification.UnixNano(), 10)
}

func (e Timestamp) String() string {
	return fmt.Sprintf("timestamp (created %s, modified %s)",
		e.Creation.UTC().Format(time.RFC3339), e.Modification.UTC().Format(time.RFC3339))
}

// XMP is a raw XMP packet.
type XMP struct {
	Data []byte
}

// Key implements Entry.
func (e XMP) Key() string {
	return "xmp:" + hex.EncodeToString(e.Data)
}

func (e XMP) String() string {
	return fmt.Sprintf("XMP (%d bytes)", len(e.Data))
}

// MdtaType is the type of a Mdta value.
type MdtaType int

// Mdta value types.
const (
	MdtaTypeBinary MdtaType = iota
	MdtaTypeString
	MdtaTypeFloat32
)

func (t MdtaType) String() string {
	switch t {
	case MdtaTypeBinary:
		return "binary"
	case MdtaTypeString:
		return "string"
	case MdtaTypeFloat32:
		return "float32"
	}
	return "unknown"
}

// Mdta is a QuickTime key/value metadata item.
type Mdta struct {
	Name  string
	Value []byte
	Type  MdtaType
}

// NewMdtaString allocates a Mdta with a string value.
func NewMdtaString(name string, value string) Mdta {
	return Mdta{
		Name:  name,
		Value: []byte(value),
		Type:  MdtaTypeString,
	}
}

// NewMdtaFloat32 allocates a Mdta with a float32 value.
func NewMdtaFloat32(name string, value float32) Mdta {
	bits := math.Float32bits(value)

	return Mdta{
		Name:  name,
		Value: []byte{byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits)},
		Type:  MdtaTypeFloat32,
	}
}

// Key implements Entry.
func (e Mdta) Key() string {
	return "mdta:" + e.Type.String() + ":" + e.Name + ":" + hex.EncodeToString(e.Value)
}

func (e Mdta) String() string {
	if e.Type == MdtaTypeString {
		return fmt.Sprintf("mdta %q = %q", e.Name, e.Value)
	}
	return fmt.Sprintf("mdta %q (%s, %d bytes)", e.Name, e.Type, len(e.Value))
}

// Custom is an arbitrary binary entry.
type Custom struct {
	Name string
	Data []byte
}

// Key implements Entry.
func (e Custom) Key() string {
	return "custom:" + e.Name + ":" + hex.EncodeToString(e.Data)
}

func (e Custom) String() string {
	return fmt.Sprintf("custom %q (%d bytes)", e.Name, len(e.Data))
}
