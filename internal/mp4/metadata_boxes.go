package mp4

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	gomp4 "github.com/abema/go-mp4"

	"github.com/bluenviron/mp4mux/internal/metadata"
)

// seconds between 1904-01-01 and 1970-01-01.
const epoch1904Offset = 2082844800

// QuickTime language code of "und".
const languageUndetermined = 0x55c4

var (
	boxTypeLocation = gomp4.BoxType{0xa9, 'x', 'y', 'z'}
	boxTypeXMP      = gomp4.StrToBoxType("XMP_")
)

func orientationMatrix(degrees int) [9]int32 {
	switch degrees {
	case 90:
		return [9]int32{0, 0x10000, 0, -0x10000, 0, 0, 0, 0, 0x40000000}

	case 180:
		return [9]int32{-0x10000, 0, 0, 0, -0x10000, 0, 0, 0, 0x40000000}

	case 270:
		return [9]int32{0, -0x10000, 0, 0x10000, 0, 0, 0, 0, 0x40000000}
	}

	return [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}
}

// timeTo1904 returns zero when t does not fit in 32 bits.
func timeTo1904(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}

	v := t.Unix() + epoch1904Offset
	if v < 0 || v > math.MaxUint32 {
		return 0
	}

	return uint32(v)
}

// iso6709 encodes a location as described by ISO 6709 Annex H.
func iso6709(l metadata.Location) string {
	return fmt.Sprintf("%+08.4f%+09.4f/", l.Latitude, l.Longitude)
}

type mdtaItem struct {
	name     string
	value    []byte
	dataType uint32
}

// stagedMetadata contains metadata waiting to be written.
type stagedMetadata struct {
	orientation int
	timestamp   *metadata.Timestamp
	location    *metadata.Location
	xmp         []byte
	mdta        []mdtaItem

	err error
}

func (m *stagedMetadata) add(e metadata.Entry) {
	switch e := e.(type) {
	case metadata.Orientation:
		m.orientation = e.Degrees

	case metadata.Timestamp:
		m.timestamp = &e

	case metadata.Location:
		m.location = &e

	case metadata.XMP:
		m.xmp = e.Data

	case metadata.Mdta:
		item := mdtaItem{
			name:  e.Name,
			value: e.Value,
		}

		switch e.Type {
		case metadata.MdtaTypeString:
			item.dataType = gomp4.DataTypeStringUTF8
		case metadata.MdtaTypeFloat32:
			item.dataType = gomp4.DataTypeFloat32BigEndian
		default:
			item.dataType = gomp4.DataTypeBinary
		}

		for i, cur := range m.mdta {
			if cur.name == item.name {
				m.mdta[i] = item
				return
			}
		}
		m.mdta = append(m.mdta, item)

	default:
		if m.err == nil {
			m.err = fmt.Errorf("unsupported metadata entry: %v", e)
		}
	}
}

func (m *stagedMetadata) creationTime() uint32 {
	if m.timestamp == nil {
		return 0
	}
	return timeTo1904(m.timestamp.Creation)
}

func (m *stagedMetadata) modificationTime() uint32 {
	if m.timestamp == nil {
		return 0
	}
	if m.timestamp.Modification.IsZero() {
		return timeTo1904(m.timestamp.Creation)
	}
	return timeTo1904(m.timestamp.Modification)
}

// writeMoovMetadata writes the metadata boxes at the end of a moov box.
func (m *stagedMetadata) writeMoovMetadata(w *boxWriter) error {
	/*
		|udta|
		|    |©xyz|
		|    |XMP_|
		|meta|
		|    |hdlr|
		|    |keys|
		|    |ilst|
		|    |    |1   |
		|    |    |    |data|
	*/

	if m.location != nil || m.xmp != nil {
		_, err := w.writeBoxStart(&gomp4.Udta{}) // <udta>
		if err != nil {
			return err
		}

		if m.location != nil {
			loc := iso6709(*m.location)
			payload := make([]byte, 4+len(loc))
			binary.BigEndian.PutUint16(payload, uint16(len(loc)))
			binary.BigEndian.PutUint16(payload[2:], languageUndetermined)
			copy(payload[4:], loc)

			err = w.writeRawBox(boxTypeLocation, payload) // <©xyz/>
			if err != nil {
				return err
			}
		}

		if m.xmp != nil {
			err = w.writeRawBox(boxTypeXMP, m.xmp) // <XMP_/>
			if err != nil {
				return err
			}
		}

		err = w.writeBoxEnd() // </udta>
		if err != nil {
			return err
		}
	}

	if len(m.mdta) != 0 {
		err := m.writeMeta(w)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *stagedMetadata) writeMeta(w *boxWriter) error {
	_, err := w.writeBoxStart(&gomp4.Meta{}) // <meta>
	if err != nil {
		return err
	}

	_, err = w.writeBox(&gomp4.Hdlr{ // <hdlr/>
		HandlerType: [4]byte{'m', 'd', 't', 'a'},
	})
	if err != nil {
		return err
	}

	keys := make([]gomp4.Key, len(m.mdta))
	for i, item := range m.mdta {
		keys[i] = gomp4.Key{
			KeySize:      int32(8 + len(item.name)),
			KeyNamespace: []byte("mdta"),
			KeyValue:     []byte(item.name),
		}
	}

	_, err = w.writeBox(&gomp4.Keys{ // <keys/>
		EntryCount: int32(len(keys)),
		Entries:    keys,
	})
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&gomp4.Ilst{}) // <ilst>
	if err != nil {
		return err
	}

	for i, item := range m.mdta {
		var typ gomp4.BoxType
		binary.BigEndian.PutUint32(typ[:], uint32(i+1))

		err = w.writeContainerStart(typ) // <index>
		if err != nil {
			return err
		}

		_, err = w.writeBoxCtx(&gomp4.Data{ // <data/>
			DataType: item.dataType,
			Data:     item.value,
		}, gomp4.Context{UnderIlst: true, UnderIlstMeta: true})
		if err != nil {
			return err
		}

		err = w.writeBoxEnd() // </index>
		if err != nil {
			return err
		}
	}

	err = w.writeBoxEnd() // </ilst>
	if err != nil {
		return err
	}

	return w.writeBoxEnd() // </meta>
}
