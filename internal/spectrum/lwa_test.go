package spectrum

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lockin.scan/internal/fsutil"
	"github.com/banshee-data/lockin.scan/internal/scan"
)

const wantBlock = `#window 1 run 0f8fad5b-d9cb-469f-a165-70867728950e
#itgtime 0.5
#sens 1 mV
#tc 0.1
#cal 15 75
#passes 3 multiplier 6
#points 3
100.000000	1.500000000e-06
100.005000	-2.000000000e-07
100.010000	3.250000000e-06

`

func TestLWAFile_Save(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	store := NewLWAFile(mfs)
	spectrum, meta := testWindow()

	require.NoError(t, store.Save("/data/run1/scan.lwa", spectrum, meta))

	data, err := mfs.ReadFile("/data/run1/scan.lwa")
	require.NoError(t, err)
	assert.Equal(t, wantBlock, string(data))
}

func TestLWAFile_AppendsWindowsInOrder(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	store := NewLWAFile(mfs)
	spectrum, meta := testWindow()

	meta.WindowIndex = 0
	require.NoError(t, store.Save("scan.lwa", spectrum, meta))
	meta.WindowIndex = 1
	require.NoError(t, store.Save("scan.lwa", spectrum, meta))

	data, err := mfs.ReadFile("scan.lwa")
	require.NoError(t, err)
	assert.Equal(t, replaceWindow(wantBlock, "0")+wantBlock, string(data))
}

func replaceWindow(block, idx string) string {
	return "#window " + idx + block[len("#window 1"):]
}

func TestLWAFile_Errors(t *testing.T) {
	spectrum, meta := testWindow()

	store := NewLWAFile(fsutil.NewMemoryFileSystem())
	assert.Error(t, store.Save("", spectrum, meta))

	bad := scan.Spectrum{Frequencies: []float64{1, 2}, Values: []float64{1}}
	assert.Error(t, store.Save("scan.lwa", bad, meta))

	mfs := fsutil.NewMemoryFileSystem()
	mfs.FailWrites = errDisk
	assert.ErrorIs(t, NewLWAFile(mfs).Save("scan.lwa", spectrum, meta), errDisk)
}

// tornFS commits the first half of every write and then fails it, the way a
// full disk cuts an append short.
type tornFS struct {
	*fsutil.MemoryFileSystem
	torn bool
}

func (f *tornFS) Append(name string) (io.WriteCloser, error) {
	w, err := f.MemoryFileSystem.Append(name)
	if err != nil || !f.torn {
		return w, err
	}
	return tornWriter{w}, nil
}

type tornWriter struct{ io.WriteCloser }

func (w tornWriter) Write(p []byte) (int, error) {
	n, _ := w.WriteCloser.Write(p[:len(p)/2])
	return n, errDisk
}

func TestLWAFile_FailedSaveLeavesNoPartialBlock(t *testing.T) {
	fsys := &tornFS{MemoryFileSystem: fsutil.NewMemoryFileSystem()}
	store := NewLWAFile(fsys)
	spectrum, meta := testWindow()

	meta.WindowIndex = 0
	require.NoError(t, store.Save("scan.lwa", spectrum, meta))

	fsys.torn = true
	meta.WindowIndex = 1
	assert.ErrorIs(t, store.Save("scan.lwa", spectrum, meta), errDisk)
	data, err := fsys.ReadFile("scan.lwa")
	require.NoError(t, err)
	assert.Equal(t, replaceWindow(wantBlock, "0"), string(data))

	fsys.torn = false
	require.NoError(t, store.Save("scan.lwa", spectrum, meta))
	data, err = fsys.ReadFile("scan.lwa")
	require.NoError(t, err)
	assert.Equal(t, replaceWindow(wantBlock, "0")+wantBlock, string(data))
}
