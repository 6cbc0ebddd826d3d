package registry

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-agents/internal/adapter/definition"
	"aura-agents/internal/domain"
)

func defText(priority int, caps ...string) string {
	text := "## Metadata\n- **Model**: m\n- **Priority**: " + strconv.Itoa(priority) + "\n## Capabilities\n"
	for _, c := range caps {
		text += "- " + c + "\n"
	}
	return text + "## System Prompt\nDo the work: {{prompt}}\n"
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newDirRegistry(t *testing.T, dirs ...string) *Registry {
	t.Helper()
	parser := definition.NewParser(nil)
	var sources []domain.DefinitionSource
	for _, d := range dirs {
		sources = append(sources, definition.NewDirSource(d, ".md", parser))
	}
	return New(Config{Sources: sources, Factory: stubFactory})
}

func TestReloadAllAddsUpdatesRemoves(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coder.md", defText(20, "coding"))
	writeFile(t, dir, "reviewer.md", defText(50, "review"))

	reg := newDirRegistry(t, dir)
	report, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReloadReport{Added: 2}, report)

	// Unchanged files are not re-registered.
	report, err = reg.ReloadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReloadReport{Unchanged: 2}, report)

	writeFile(t, dir, "coder.md", defText(10, "coding"))
	require.NoError(t, os.Remove(filepath.Join(dir, "reviewer.md")))

	report, err = reg.ReloadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReloadReport{Updated: 1, Removed: 1}, report)

	a, ok := reg.Get("coder")
	require.True(t, ok)
	assert.Equal(t, 10, a.Definition().Priority)
	_, ok = reg.Get("reviewer")
	assert.False(t, ok)
}

func TestReloadAllKeepsPinnedAgents(t *testing.T) {
	dir := t.TempDir()
	reg := newDirRegistry(t, dir)
	reg.Register(agentWith("chunker", 50, []string{"chunking"}), true)

	// A discovered definition cannot shadow a pinned id.
	writeFile(t, dir, "chunker.md", defText(1, "chunking"))

	_, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)

	a, ok := reg.Get("chunker")
	require.True(t, ok)
	assert.Equal(t, 50, a.Definition().Priority)
	assert.True(t, reg.IsPinned("chunker"))

	require.NoError(t, os.Remove(filepath.Join(dir, "chunker.md")))
	_, err = reg.ReloadAll(context.Background())
	require.NoError(t, err)
	_, ok = reg.Get("chunker")
	assert.True(t, ok, "pinned agents survive reload regardless of source state")
}

func TestReloadAllBrokenFileKeepsPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coder.md", defText(20, "coding"))
	reg := newDirRegistry(t, dir)
	_, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)

	writeFile(t, dir, "coder.md", "half-written")
	report, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Removed)

	a, ok := reg.BestFor("coding", "")
	require.True(t, ok)
	assert.Equal(t, "coder", a.ID())
}

func TestReloadAllUnreadableSourceRemovesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coder.md", defText(20, "coding"))
	reg := newDirRegistry(t, dir)
	_, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	report, err := reg.ReloadAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, report.Removed)
	_, ok := reg.Get("coder")
	assert.True(t, ok)
}

func TestReloadAllFirstSourceWinsDuplicateIDs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, a, "coder.md", defText(20, "coding"))
	writeFile(t, b, "coder.md", defText(5, "coding"))
	reg := newDirRegistry(t, a, b)

	_, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)
	got, ok := reg.Get("coder")
	require.True(t, ok)
	assert.Equal(t, 20, got.Definition().Priority)
}

func TestReloadFileKeepsEarlierSourceOwner(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, a, "coder.md", defText(20, "coding"))
	shadow := writeFile(t, b, "coder.md", defText(5, "coding"))
	reg := newDirRegistry(t, a, b)
	_, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)

	second := reg.Sources()[1]
	writeFile(t, b, "coder.md", defText(7, "coding"))
	require.NoError(t, reg.ReloadFile(context.Background(), second, shadow))

	got, ok := reg.Get("coder")
	require.True(t, ok)
	assert.Equal(t, 20, got.Definition().Priority, "later source must not replace the earlier one")

	require.NoError(t, os.Remove(shadow))
	require.NoError(t, reg.ReloadFile(context.Background(), second, shadow))
	_, ok = reg.Get("coder")
	assert.True(t, ok, "removing the shadowed file leaves the owner registered")
}

func TestReloadFileLaterSourceTakesOverAfterRemoval(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	owner := writeFile(t, a, "coder.md", defText(20, "coding"))
	writeFile(t, b, "coder.md", defText(5, "coding"))
	reg := newDirRegistry(t, a, b)
	_, err := reg.ReloadAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(owner))
	require.NoError(t, reg.ReloadFile(context.Background(), reg.Sources()[0], owner))

	got, ok := reg.Get("coder")
	require.True(t, ok)
	assert.Equal(t, 5, got.Definition().Priority)

	// The original source reclaims the id once its file returns.
	writeFile(t, a, "coder.md", defText(20, "coding"))
	require.NoError(t, reg.ReloadFile(context.Background(), reg.Sources()[0], owner))
	got, ok = reg.Get("coder")
	require.True(t, ok)
	assert.Equal(t, 20, got.Definition().Priority)
}

func TestReloadAllCancelled(t *testing.T) {
	reg := newDirRegistry(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.ReloadAll(ctx)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestReloadAllSerialized(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, dir, "agent"+strconv.Itoa(i)+".md", defText(i, "coding"))
	}
	reg := newDirRegistry(t, dir)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			_, _ = reg.ReloadAll(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("reloads did not finish")
		}
	}
	assert.Equal(t, 10, reg.Len())
	a, ok := reg.BestFor("coding", "")
	require.True(t, ok)
	assert.Equal(t, "agent0", a.ID())
}

func TestReloadFileAndRemoveFile(t *testing.T) {
	dir := t.TempDir()
	reg := newDirRegistry(t, dir)
	src := reg.Sources()[0]

	path := writeFile(t, dir, "planner.md", defText(30, "planning"))
	require.NoError(t, reg.ReloadFile(context.Background(), src, path))
	_, ok := reg.Get("planner")
	require.True(t, ok)

	writeFile(t, dir, "planner.md", "broken")
	assert.Error(t, reg.ReloadFile(context.Background(), src, path))
	_, ok = reg.Get("planner")
	assert.True(t, ok, "failed parse keeps previous version")

	require.NoError(t, os.Remove(path))
	require.NoError(t, reg.ReloadFile(context.Background(), src, path))
	_, ok = reg.Get("planner")
	assert.False(t, ok, "missing file unregisters")

	writeFile(t, dir, "planner.md", defText(30, "planning"))
	require.NoError(t, reg.ReloadFile(context.Background(), src, path))
	assert.True(t, reg.RemoveFile(src, path))
	assert.False(t, reg.RemoveFile(src, filepath.Join(dir, "notes.txt")))
}
