// Package spectrum persists finished scan windows: an append-only text file
// per destination, a sqlite archive, and a PNG rendering of each trace.
package spectrum

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/lockin.scan/internal/fsutil"
	"github.com/banshee-data/lockin.scan/internal/scan"
)

// LWAFile appends each saved window to the destination file as a header
// block followed by one "frequency value" row per point. Windows of a batch
// share the destination and land in plan order.
type LWAFile struct {
	fs fsutil.FileSystem
}

// NewLWAFile creates an LWAFile writing through fs. A nil fs uses the OS.
func NewLWAFile(fs fsutil.FileSystem) *LWAFile {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &LWAFile{fs: fs}
}

func (l *LWAFile) Save(destination string, spectrum scan.Spectrum, meta scan.Metadata) error {
	if destination == "" {
		return fmt.Errorf("no destination file")
	}
	if len(spectrum.Frequencies) != len(spectrum.Values) {
		return fmt.Errorf("spectrum has %d frequencies but %d values", len(spectrum.Frequencies), len(spectrum.Values))
	}
	if dir := filepath.Dir(destination); dir != "." {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var block bytes.Buffer
	writeLWABlock(&block, spectrum, meta)

	size, err := l.fs.Size(destination)
	if errors.Is(err, fs.ErrNotExist) {
		size = 0
	} else if err != nil {
		return err
	}
	f, err := l.fs.Append(destination)
	if err != nil {
		return err
	}
	if _, err := f.Write(block.Bytes()); err != nil {
		f.Close()
		return l.rollback(destination, size, err)
	}
	if err := f.Close(); err != nil {
		return l.rollback(destination, size, err)
	}
	return nil
}

// rollback cuts destination back to size so a retried save cannot leave a
// partial block in front of the full one.
func (l *LWAFile) rollback(destination string, size int64, cause error) error {
	if err := l.fs.Truncate(destination, size); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to remove partial block from %s: %w", destination, err))
	}
	return cause
}

func writeLWABlock(w *bytes.Buffer, spectrum scan.Spectrum, meta scan.Metadata) {
	fmt.Fprintf(w, "#window %d run %s\n", meta.WindowIndex, meta.RunID)
	fmt.Fprintf(w, "#itgtime %s\n", seconds(meta.Integration))
	fmt.Fprintf(w, "#sens %s\n", meta.SensitivityLabel)
	fmt.Fprintf(w, "#tc %s\n", seconds(meta.TimeConstant))
	fmt.Fprintf(w, "#cal %s %s\n", num(meta.Calibration[0]), num(meta.Calibration[1]))
	fmt.Fprintf(w, "#passes %d multiplier %s\n", meta.Passes, num(meta.Multiplier))
	fmt.Fprintf(w, "#points %d\n", len(spectrum.Values))
	for i, f := range spectrum.Frequencies {
		fmt.Fprintf(w, "%.6f\t%s\n", f, strconv.FormatFloat(spectrum.Values[i], 'e', 9, 64))
	}
	w.WriteString("\n")
}

func seconds(d time.Duration) string { return num(d.Seconds()) }

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
