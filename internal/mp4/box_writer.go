package mp4

import (
	"io"

	gomp4 "github.com/abema/go-mp4"
)

type boxWriter struct {
	w *gomp4.Writer
}

func newBoxWriter(w io.WriteSeeker) *boxWriter {
	return &boxWriter{
		w: gomp4.NewWriter(w),
	}
}

func (w *boxWriter) offset() (int64, error) {
	return w.w.Seek(0, io.SeekCurrent)
}

func (w *boxWriter) writeBoxStart(box gomp4.IImmutableBox) (int, error) {
	return w.writeBoxStartCtx(box, gomp4.Context{})
}

func (w *boxWriter) writeBoxStartCtx(box gomp4.IImmutableBox, ctx gomp4.Context) (int, error) {
	bi := &gomp4.BoxInfo{
		Type: box.GetType(),
	}
	var err error
	bi, err = w.w.StartBox(bi)
	if err != nil {
		return 0, err
	}

	_, err = gomp4.Marshal(w.w, box, ctx)
	if err != nil {
		return 0, err
	}

	return int(bi.Offset), nil
}

func (w *boxWriter) writeBoxEnd() error {
	_, err := w.w.EndBox()
	return err
}

func (w *boxWriter) writeBox(box gomp4.IImmutableBox) (int, error) {
	return w.writeBoxCtx(box, gomp4.Context{})
}

func (w *boxWriter) writeBoxCtx(box gomp4.IImmutableBox, ctx gomp4.Context) (int, error) {
	off, err := w.writeBoxStartCtx(box, ctx)
	if err != nil {
		return 0, err
	}

	err = w.writeBoxEnd()
	if err != nil {
		return 0, err
	}

	return off, nil
}

// writeContainerStart starts a box whose type is not known to go-mp4.
func (w *boxWriter) writeContainerStart(typ gomp4.BoxType) error {
	_, err := w.w.StartBox(&gomp4.BoxInfo{Type: typ})
	return err
}

// writeRawBox writes a box whose type is not known to go-mp4.
func (w *boxWriter) writeRawBox(typ gomp4.BoxType, payload []byte) error {
	err := w.writeContainerStart(typ)
	if err != nil {
		return err
	}

	_, err = w.w.Write(payload)
	if err != nil {
		return err
	}

	return w.writeBoxEnd()
}

func (w *boxWriter) rewriteBox(off int, box gomp4.IImmutableBox) error {
	prevOff, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(int64(off), io.SeekStart)
	if err != nil {
		return err
	}

	_, err = w.writeBox(box)
	if err != nil {
		return err
	}

	_, err = w.w.Seek(prevOff, io.SeekStart)
	return err
}
