package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// destinationFile appends log lines to a file, without colors.
type destinationFile struct {
	file *os.File
	buf  bytes.Buffer
}

func newDestinationFile(filePath string) (destination, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			return nil, fmt.Errorf("unable to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	return &destinationFile{
		file: f,
	}, nil
}

func (d *destinationFile) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	writeTime(&d.buf, t, false)
	writeLevel(&d.buf, level, false)
	writeContent(&d.buf, format, args)
	d.file.Write(d.buf.Bytes()) //nolint:errcheck
}

// close flushes the file, so that the remux summary survives a crash of the host.
func (d *destinationFile) close() {
	d.file.Sync() //nolint:errcheck
	d.file.Close()
}
