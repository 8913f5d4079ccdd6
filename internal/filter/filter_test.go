package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilAndEmptySetMatchEverything(t *testing.T) {
	var s *Set
	assert.True(t, s.Match("any/path.sav", false))
	assert.True(t, s.Empty())

	empty, err := New(nil, nil)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.True(t, empty.Match("x.tmp", false))
}

func TestIncludeRestricts(t *testing.T) {
	s, err := New([]string{"*.sav"}, nil)
	require.NoError(t, err)

	assert.True(t, s.Match("slot1.sav", false))
	assert.True(t, s.Match("profiles/a/slot1.sav", false))
	assert.False(t, s.Match("settings.ini", false))
}

func TestExcludeWins(t *testing.T) {
	s, err := New([]string{"*.sav"}, []string{"backup/", "*.tmp.sav"})
	require.NoError(t, err)

	assert.True(t, s.Match("a.sav", false))
	assert.False(t, s.Match("a.tmp.sav", false))
	assert.False(t, s.Match("backup", true))
	assert.True(t, s.Match("backup.sav", false), "dir-only pattern ignores files")
	assert.False(t, s.Match("backup/slot1.sav", false))
	assert.False(t, s.Match("profiles/backup/x.sav", false))
	assert.True(t, s.Match("profiles/backupx/x.sav", false))
}

func TestParentDirectoryPatterns(t *testing.T) {
	s, err := New(nil, []string{"/cache", "**/Temp/"})
	require.NoError(t, err)

	assert.False(t, s.Match("cache/a/b/slot.sav", false))
	assert.True(t, s.Match("sub/cache/slot.sav", false), "anchored pattern only matches at root")
	assert.False(t, s.Match("p/Temp/slot.sav", false))
	assert.True(t, s.Match("p/Temporary/slot.sav", false))

	inc, err := New([]string{"profiles/"}, nil)
	require.NoError(t, err)
	assert.True(t, inc.Match("profiles/one/slot.sav", false))
	assert.False(t, inc.Match("other/slot.sav", false))
	assert.False(t, inc.Match("profiles", false))
}

func TestPatterns(t *testing.T) {
	tests := []struct {
		glob  string
		path  string
		isDir bool
		want  bool
	}{
		{"*.sav", "a.sav", false, true},
		{"*.sav", "deep/nested/a.sav", false, true},
		{"*.sav", "a.sav.bak", false, false},
		{"/top.sav", "top.sav", false, true},
		{"/top.sav", "sub/top.sav", false, false},
		{"saves/*.bin", "saves/x.bin", false, true},
		{"saves/*.bin", "saves/deep/x.bin", false, false},
		{"saves/*.bin", "other/saves/x.bin", false, false},
		{"**/*.bin", "x.bin", false, true},
		{"**/*.bin", "a/b/c/x.bin", false, true},
		{"saves/**", "saves/a/b", false, true},
		{"slot?.sav", "slot1.sav", false, true},
		{"slot?.sav", "slot10.sav", false, false},
		{"slot[0-9].sav", "slot7.sav", false, true},
		{"slot[!0-9].sav", "slot7.sav", false, false},
		{"slot[!0-9].sav", "slotA.sav", false, true},
		{"a+b(1).sav", "a+b(1).sav", false, true},
		{"[abc", "[abc", false, true},
		{"cache/", "cache", true, true},
		{"cache/", "cache", false, false},
		{"spiel*.sav", "spielstände/spielé.sav", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.glob+"~"+tt.path, func(t *testing.T) {
			p, err := compile(tt.glob)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.match(tt.path, tt.isDir))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers")
	content := "# save triggers\n\n+ *.sav\n- *.tmp.sav\nprofile.dat\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := &Set{}
	require.NoError(t, s.LoadFile(path))

	assert.True(t, s.Match("a.sav", false))
	assert.True(t, s.Match("profile.dat", false))
	assert.False(t, s.Match("a.tmp.sav", false))
	assert.False(t, s.Match("readme.txt", false))
}

func TestLoadFileErrors(t *testing.T) {
	s := &Set{}
	err := s.LoadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
