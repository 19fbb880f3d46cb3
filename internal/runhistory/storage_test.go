package runhistory_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contenderhq/contender/internal/runhistory"
)

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := runhistory.CreateRunDir(base)
	require.NoError(t, err)

	_, err = os.Stat(runDir)
	require.NoError(t, err, "run directory must exist")

	target, err := os.Readlink(filepath.Join(base, "latest"))
	require.NoError(t, err)
	assert.Equal(t, runDir, target)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)

	a := s.FromUnit([]float64{0.25, 0.75})
	b := s.FromUnit([]float64{0.5, 0.5})

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, rh.Add(a, "inst1", 1, 2, runhistory.TrialValue{
		Costs: []float64{1.5}, Time: 0.2, Status: runhistory.StatusSuccess,
		StartTime: now, EndTime: now.Add(200 * time.Millisecond),
		AdditionalInfo: map[string]any{"note": "first"},
	}))
	require.NoError(t, rh.Add(b, "", 2, 4, runhistory.TrialValue{
		Costs: []float64{9.0}, Time: 1.0, Status: runhistory.StatusTimeout,
		StartTime: now, EndTime: now.Add(time.Second),
	}))
	rh.NoteSubmitted()
	rh.NoteSubmitted()
	rh.NoteSubmitted() // one still in flight when we save

	dir := t.TempDir()
	require.NoError(t, rh.Save(dir))

	got, err := runhistory.Load(dir, s, nil)
	require.NoError(t, err)

	assert.Equal(t, rh.Len(), got.Len())
	assert.Equal(t, 3, got.Submitted())
	assert.Equal(t, 2, got.Finished())

	// Config ids survive the round trip.
	assert.Equal(t, 1, got.ConfigID(a))
	assert.Equal(t, 2, got.ConfigID(b))

	v, ok := got.Get(got.Key(a, "inst1", 1, 2))
	require.True(t, ok)
	assert.Equal(t, runhistory.StatusSuccess, v.Status)
	assert.Equal(t, []float64{1.5}, v.Costs)
	assert.Equal(t, "first", v.AdditionalInfo["note"])

	v, ok = got.Get(got.Key(b, "", 2, 4))
	require.True(t, ok)
	assert.Equal(t, runhistory.StatusTimeout, v.Status)
}

func TestLoadMissingFile(t *testing.T) {
	s := newSpace(t)
	_, err := runhistory.Load(t.TempDir(), s, nil)
	assert.Error(t, err)
}

func TestSaveIsAtomic(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)
	require.NoError(t, rh.Add(s.Default(), "", 1, 0, success(1)))

	dir := t.TempDir()
	require.NoError(t, rh.Save(dir))
	require.NoError(t, rh.Save(dir), "second save overwrites cleanly")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, runhistory.FileName, entries[0].Name())
}
