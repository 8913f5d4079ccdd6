package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/savewarden/internal/filter"
)

// createTestTree populates root with:
//
//	root.sav           (17 bytes)
//	big.bin            (320KB)
//	slot/mid.sav       (19 bytes)
//	slot/deep/leaf.sav (17 bytes)
//	link.sav           -> root.sav
func createTestTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "slot", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "root.sav"), []byte("root file content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "slot", "mid.sav"), []byte("middle file content"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "slot", "deep", "leaf.sav"), []byte("leaf file content"), 0o644))
	require.NoError(t, os.Symlink("root.sav", filepath.Join(root, "link.sav")))
}

func requireSameFile(t *testing.T, src, dst string) {
	t.Helper()
	want, err := os.ReadFile(src)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, want, got, "content of %s", dst)
}

func TestRunReplicatesTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "backup")
	createTestTree(t, src)

	res := Run(context.Background(), Config{Src: src, Dst: dst})
	require.NoError(t, res.Err)

	for _, rel := range []string{"root.sav", "big.bin", "slot/mid.sav", "slot/deep/leaf.sav"} {
		requireSameFile(t, filepath.Join(src, rel), filepath.Join(dst, rel))
	}
	target, err := os.Readlink(filepath.Join(dst, "link.sav"))
	require.NoError(t, err)
	assert.Equal(t, "root.sav", target)

	info, err := os.Stat(filepath.Join(dst, "slot", "mid.sav"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Equal(t, int64(4), res.Stats.FilesCopied)
	assert.Equal(t, int64(1), res.Stats.SymlinksCreated)
	assert.Equal(t, int64(2), res.Stats.DirsCreated)
	assert.Equal(t, int64(17+320000+19+17), res.Stats.BytesCopied)

	matches, err := filepath.Glob(filepath.Join(dst, "*"+tmpSuffix))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files left behind")
}

func TestRunSkipsUnchanged(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	createTestTree(t, src)

	require.NoError(t, Run(context.Background(), Config{Src: src, Dst: dst}).Err)

	res := Run(context.Background(), Config{Src: src, Dst: dst})
	require.NoError(t, res.Err)
	assert.Zero(t, res.Stats.FilesCopied)
	assert.Equal(t, int64(5), res.Stats.FilesSkipped)

	// A changed file is copied again.
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(filepath.Join(src, "root.sav"), []byte("new root content!"), 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(src, "root.sav"), later, later))

	res = Run(context.Background(), Config{Src: src, Dst: dst})
	require.NoError(t, res.Err)
	assert.Equal(t, int64(1), res.Stats.FilesCopied)
	requireSameFile(t, filepath.Join(src, "root.sav"), filepath.Join(dst, "root.sav"))

	res = Run(context.Background(), Config{Src: src, Dst: dst, Force: true})
	require.NoError(t, res.Err)
	assert.Equal(t, int64(4), res.Stats.FilesCopied)
}

func TestRunSingleFile(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "only.sav")
	require.NoError(t, os.WriteFile(src, []byte("single"), 0o644))
	dst := filepath.Join(t.TempDir(), "out")

	res := Run(context.Background(), Config{Src: src, Dst: dst, Verify: true})
	require.NoError(t, res.Err)
	requireSameFile(t, src, filepath.Join(dst, "only.sav"))
	assert.Equal(t, int64(1), res.Stats.FilesVerified)
}

func TestRunFilter(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	createTestTree(t, src)

	f, err := filter.New([]string{"*.sav", "slot/"}, []string{"deep/"})
	require.NoError(t, err)

	res := Run(context.Background(), Config{Src: src, Dst: dst, Filter: f})
	require.NoError(t, res.Err)

	assert.FileExists(t, filepath.Join(dst, "root.sav"))
	assert.FileExists(t, filepath.Join(dst, "slot", "mid.sav"))
	assert.NoFileExists(t, filepath.Join(dst, "big.bin"))
	assert.NoDirExists(t, filepath.Join(dst, "slot", "deep"))
}

func TestRunDryRun(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	createTestTree(t, src)

	res := Run(context.Background(), Config{Src: src, Dst: dst, DryRun: true})
	require.NoError(t, res.Err)
	assert.Equal(t, int64(7), res.Stats.FilesScanned)

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunVerify(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	createTestTree(t, src)

	res := Run(context.Background(), Config{Src: src, Dst: dst, Verify: true, Workers: 2})
	require.NoError(t, res.Err)
	assert.Equal(t, int64(4), res.Stats.FilesVerified)
	assert.Zero(t, res.Stats.FilesVerifyFailed)
}

func TestRunBandwidthLimited(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	createTestTree(t, src)

	res := Run(context.Background(), Config{Src: src, Dst: dst, BWLimit: 64 << 20})
	require.NoError(t, res.Err)
	requireSameFile(t, filepath.Join(src, "big.bin"), filepath.Join(dst, "big.bin"))
}

func TestRunMissingSource(t *testing.T) {
	res := Run(context.Background(), Config{Src: filepath.Join(t.TempDir(), "nope"), Dst: t.TempDir()})
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, os.ErrNotExist)
}

func TestRunCancelled(t *testing.T) {
	src := t.TempDir()
	createTestTree(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Run(ctx, Config{Src: src, Dst: t.TempDir()})
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRunReportsAllErrors(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	src := t.TempDir()
	for _, name := range []string{"a.sav", "b.sav"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(name), 0o000))
	}

	res := Run(context.Background(), Config{Src: src, Dst: t.TempDir()})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "and 1 more errors")
	assert.Equal(t, int64(2), res.Stats.FilesFailed)
}
