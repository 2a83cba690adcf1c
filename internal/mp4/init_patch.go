package mp4

import (
	"bytes"

	gomp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4/seekablebuffer"
)

// patchInit rewrites an initialization segment in order to include metadata.
// Times of mvhd and tkhd are replaced, video tracks are rotated
// and metadata boxes are appended to moov.
func patchInit(init []byte, meta *stagedMetadata, videoTrackIDs map[uint32]struct{}) ([]byte, error) {
	r := bytes.NewReader(init)
	var buf seekablebuffer.Buffer
	w := newBoxWriter(&buf)

	_, err := gomp4.ReadBoxStructure(r, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMoov():
			_, err := w.w.StartBox(&h.BoxInfo)
			if err != nil {
				return nil, err
			}

			_, err = h.Expand()
			if err != nil {
				return nil, err
			}

			err = meta.writeMoovMetadata(w)
			if err != nil {
				return nil, err
			}

			return nil, w.writeBoxEnd()

		case gomp4.BoxTypeTrak():
			_, err := w.w.StartBox(&h.BoxInfo)
			if err != nil {
				return nil, err
			}

			_, err = h.Expand()
			if err != nil {
				return nil, err
			}

			return nil, w.writeBoxEnd()

		case gomp4.BoxTypeMvhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mvhd := box.(*gomp4.Mvhd)

			mvhd.CreationTimeV0 = meta.creationTime()
			mvhd.ModificationTimeV0 = meta.modificationTime()

			_, err = w.writeBox(mvhd)
			return nil, err

		case gomp4.BoxTypeTkhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tkhd := box.(*gomp4.Tkhd)

			tkhd.CreationTimeV0 = meta.creationTime()
			tkhd.ModificationTimeV0 = meta.modificationTime()

			if _, ok := videoTrackIDs[tkhd.TrackID]; ok {
				tkhd.Matrix = orientationMatrix(meta.orientation)
			}

			_, err = w.writeBox(tkhd)
			return nil, err

		default:
			return nil, w.w.CopyBox(r, &h.BoxInfo)
		}
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
