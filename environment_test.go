package buildscope

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/buildscope/internal/assist"
	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
)

func newTestEnv(t *testing.T, opts ...Option) *Environment {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	env, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

// openSettled opens text at path and waits for the initial analysis.
func openSettled(t *testing.T, env *Environment, path, text string) (*Document, *Snapshot) {
	t.Helper()
	d := env.OpenText(path, text)
	_, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	d.wg.Wait()
	cur, err := d.CurrentSnapshot()
	require.NoError(t, err)
	require.Equal(t, text, cur.Text)
	return d, cur
}

// blockingSource serves text once release is closed and closes reading when
// first called.
func blockingSource(text string) (src Source, reading, release chan struct{}) {
	reading = make(chan struct{})
	release = make(chan struct{})
	return func() (string, error) {
		close(reading)
		<-release
		return text, nil
	}, reading, release
}

// findStatement returns the nth statement called name whose source text is
// raw.
func findStatement(t *testing.T, tree *syntax.Tree, name, raw string, nth int) *syntax.Statement {
	t.Helper()
	var found *syntax.Statement
	i := 0
	tree.Root.Walk(func(s *syntax.Statement, _ []*syntax.Statement) bool {
		if found != nil {
			return false
		}
		if s.Name == name && s.Raw == raw {
			if i == nth {
				found = s
			}
			i++
		}
		return true
	})
	require.NotNil(t, found, "no %s %q #%d", name, raw, nth)
	return found
}

func kindsOf(infos []*model.TypedInfo) []registry.Kind {
	var out []registry.Kind
	for _, info := range infos {
		if k := registry.KindOf(info.Type); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// =============================================================================
// Document
// =============================================================================

func TestDocument_Snapshot(t *testing.T) {
	env := newTestEnv(t)
	d := env.OpenText("/ws/main.build", "$x = 5\nprint($x)\nprint($y)\n")

	snap, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/ws/main.build", snap.Path)
	require.NotNil(t, snap.Analyzer)

	deref := findStatement(t, snap.Tree, "dereference", "$x", 1)
	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(snap.Analyzer.ResultTypes(deref)))
	assert.Empty(t, snap.Analyzer.ResultTypes(findStatement(t, snap.Tree, "dereference", "$y", 0)))

	again, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, again, "fresh snapshot is reused")
}

func TestDocument_CurrentSnapshotBeforeAnalysis(t *testing.T) {
	env := newTestEnv(t)
	src, reading, release := blockingSource("a {\n}\n")
	d := env.open("/ws/main.build", src)

	_, err := d.CurrentSnapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, ok := d.StartAnalysis()
	assert.False(t, ok)
	<-reading
	close(release)
	d.wg.Wait()

	snap, ok := d.StartAnalysis()
	require.True(t, ok)
	assert.Equal(t, "a {\n}\n", snap.Text)
}

func TestDocument_UnchangedEditKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	d, snap := openSettled(t, env, "/ws/main.build", "x = 1\n")

	got, err := d.Update(context.Background(), []syntax.Edit{{Offset: 1, Length: 1, Text: " "}})
	require.NoError(t, err)
	assert.Same(t, snap, got, "whitespace replaced by identical whitespace")

	d.mu.Lock()
	assert.Nil(t, d.token, "no background parse scheduled")
	d.mu.Unlock()

	cur, err := d.CurrentSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snap.Version, cur.Version)
}

func TestDocument_Update(t *testing.T) {
	env := newTestEnv(t)
	d, snap := openSettled(t, env, "/ws/main.build", "x = 1\n")

	got, err := d.Update(context.Background(), []syntax.Edit{
		{Offset: 4, Length: 1, Text: "2"},
		{Offset: 5, Length: 0, Text: "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "x = 23\n", got.Text)
	assert.Greater(t, got.Version, snap.Version)

	// Invalidation after an update reads back the edited text.
	d.Invalidate()
	again, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, got, again)
}

func TestDocument_RepairFailureKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	d, snap := openSettled(t, env, "/ws/main.build", "x = 1\n")

	_, err := d.Update(context.Background(), []syntax.Edit{{Offset: 40, Length: 1, Text: "y"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, syntax.ErrRepair))

	cur, err := d.CurrentSnapshot()
	require.NoError(t, err)
	assert.Same(t, snap, cur)
}

func TestDocument_ParseFailureKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	d, snap := openSettled(t, env, "/ws/main.build", "x = 1\n")

	d.SetText("print(a) b\n")
	_, err := d.Snapshot(context.Background())
	require.Error(t, err)
	var pe *syntax.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 9, pe.Offset)

	cur, err := d.CurrentSnapshot()
	require.NoError(t, err)
	assert.Same(t, snap, cur, "previous snapshot survives")
}

func TestDocument_InvalidateSameContent(t *testing.T) {
	env := newTestEnv(t)
	d, snap := openSettled(t, env, "/ws/main.build", "x = 1\n")

	d.Invalidate()
	got, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, got, "content hash matches")

	d.SetText("x = 2\n")
	got, err = d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, snap, got)
	assert.Equal(t, "x = 2\n", got.Text)
}

func TestDocument_StaleWorkerDiscarded(t *testing.T) {
	env := newTestEnv(t)
	src, reading, release := blockingSource("old = 1\n")
	d := env.open("/ws/main.build", src)

	_, ok := d.StartAnalysis()
	require.False(t, ok)
	<-reading

	d.SetText("fresh = 2\n")
	snap, err := d.Snapshot(context.Background())
	require.NoError(t, err)

	close(release)
	d.wg.Wait()

	cur, err := d.CurrentSnapshot()
	require.NoError(t, err)
	assert.Same(t, snap, cur, "worker result is dropped")
	assert.Equal(t, "fresh = 2\n", cur.Text)
}

// sequenceSource blocks its first read until release is closed and serves
// first; later reads serve rest immediately.
func sequenceSource(first, rest string) (src Source, reading, release chan struct{}) {
	reading = make(chan struct{})
	release = make(chan struct{})
	var mu sync.Mutex
	calls := 0
	return func() (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n > 1 {
			return rest, nil
		}
		close(reading)
		<-release
		return first, nil
	}, reading, release
}

func TestDocument_SnapshotDoesNotOverwriteNewerUpdate(t *testing.T) {
	env := newTestEnv(t)
	d, snap := openSettled(t, env, "/ws/main.build", "x = 1\n")

	src, reading, release := sequenceSource("old = 0\n", "x = 1\n")
	d.setSource(src)

	type result struct {
		snap *Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := d.Snapshot(context.Background())
		done <- result{s, err}
	}()
	<-reading

	updated, err := d.Update(context.Background(), []syntax.Edit{{Offset: 4, Length: 1, Text: "2"}})
	require.NoError(t, err)
	assert.Equal(t, "x = 2\n", updated.Text)
	assert.Greater(t, updated.Version, snap.Version)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Same(t, updated, res.snap, "inline parse of the older text is dropped")

	cur, err := d.CurrentSnapshot()
	require.NoError(t, err)
	assert.Same(t, updated, cur)
	assert.Equal(t, "x = 2\n", cur.Text)
}

func TestDocument_UpdateRetriesAfterConcurrentPublish(t *testing.T) {
	env := newTestEnv(t)
	d, _ := openSettled(t, env, "/ws/main.build", "x = 1\n")

	src, reading, release := blockingSource("x = 1\n")
	d.setSource(src)

	type result struct {
		snap *Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := d.Update(context.Background(), []syntax.Edit{{Offset: 0, Length: 0, Text: "#c\n"}})
		done <- result{s, err}
	}()
	<-reading

	d.SetText("y = 5\n")
	published, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "y = 5\n", published.Text)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "#c\ny = 5\n", res.snap.Text, "edits apply to the newest text")
	assert.Greater(t, res.snap.Version, published.Version)

	cur, err := d.CurrentSnapshot()
	require.NoError(t, err)
	assert.Same(t, res.snap, cur)
}

func TestDocument_UpdateAfterSetText(t *testing.T) {
	env := newTestEnv(t)
	d, _ := openSettled(t, env, "/ws/main.build", "x = 1\n")

	d.SetText("print(a)\n")
	got, err := d.Update(context.Background(), []syntax.Edit{{Offset: 0, Length: 0, Text: "#c\n"}})
	require.NoError(t, err)
	assert.Equal(t, "#c\nprint(a)\n", got.Text)

	again, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, got, again, "the edited text is the new source")
}

func TestDocument_CanceledContext(t *testing.T) {
	env := newTestEnv(t)
	src, _, release := blockingSource("x = 1\n")
	close(release)
	d := env.open("/ws/main.build", src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoalesceEdits(t *testing.T) {
	edits := coalesceEdits([]syntax.Edit{
		{Offset: 2, Length: 1, Text: "ab"},
		{Offset: 4, Length: 2, Text: "c"},
		{Offset: 0, Length: 0, Text: ""},
		{Offset: 9, Length: 0, Text: "d"},
	})
	assert.Equal(t, []syntax.Edit{
		{Offset: 2, Length: 3, Text: "abc"},
		{Offset: 9, Length: 0, Text: "d"},
	}, edits)

	text := "0123456789xyz"
	sequential, err := syntax.ApplyEdits(text, []syntax.Edit{
		{Offset: 2, Length: 1, Text: "ab"},
		{Offset: 4, Length: 2, Text: "c"},
	})
	require.NoError(t, err)
	merged, err := syntax.ApplyEdits(text, edits[:1])
	require.NoError(t, err)
	assert.Equal(t, sequential, merged)
}

// =============================================================================
// Snapshot queries
// =============================================================================

func TestSnapshot_Queries(t *testing.T) {
	env := newTestEnv(t, WithUserParameters(assist.UserParameters{
		Execution: map[string]string{"release": "true"},
	}))
	_, snap := openSettled(t, env, "/ws/main.build", "# Main target.\nbuild(in src) {\n\tpri\n}\n")

	outline := snap.Outline()
	require.Len(t, outline, 1)
	assert.Equal(t, "build", outline[0].Name)
	assert.Equal(t, "Main target.", outline[0].Detail)

	assert.NotEmpty(t, snap.Tokens())

	c := snap.Context()
	assert.Equal(t, "true", c.UserParameters.Execution["release"])
	assert.NotNil(t, c.Paths)

	var names []string
	for _, p := range snap.Proposals(len("# Main target.\nbuild(in src) {\n\tpri")) {
		names = append(names, p.Insert)
	}
	assert.Contains(t, names, "print()")
}

// =============================================================================
// Environment
// =============================================================================

func TestEnvironment_CrossDocumentInclude(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	b := writeFile(t, dir, "b.build", "x(out y = 5) {\n}\n")
	a := writeFile(t, dir, "a.build", "$r = include(Target: x, Path: \"b.build\")\nprint($r[y])\n")
	ctx := context.Background()

	require.NoError(t, env.OpenAll(ctx, []string{a, b}))
	assert.Equal(t, []string{a, b}, env.TrackedPaths())
	assert.Len(t, env.Snapshots(), 2)

	snap, err := env.Analyze(ctx, a)
	require.NoError(t, err)
	sub := findStatement(t, snap.Tree, "subscript", "[y]", 0)
	assert.Contains(t, kindsOf(snap.Analyzer.ResultTypes(sub)), registry.KindNumber)
}

func TestEnvironment_StartAnalysis(t *testing.T) {
	env := newTestEnv(t)
	_, ok := env.StartAnalysis("/ws/unknown.build")
	assert.False(t, ok, "unopened documents yield nothing")

	src, reading, release := blockingSource("x {\n}\n")
	d := env.open("/ws/b.build", src)

	_, ok = env.StartAnalysis("/ws/b.build")
	assert.False(t, ok, "analysis started, not ready")
	<-reading
	close(release)
	d.wg.Wait()

	s, ok := env.StartAnalysis("/ws/b.build")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, s.Data.TargetNames())
}

func TestEnvironment_OpenAllReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.build", "x = 1\n")
	bad := writeFile(t, dir, "bad.build", "print(a) b\n")

	err := env.OpenAll(context.Background(), []string{good, bad, filepath.Join(dir, "missing.build")})
	require.Error(t, err)
	var pe *syntax.ParseError
	assert.True(t, errors.As(err, &pe))

	d, err := env.Document(bad)
	require.NoError(t, err, "failed documents stay open")
	_, err = d.CurrentSnapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = env.Analyze(context.Background(), good)
	require.NoError(t, err)
}

func TestEnvironment_DocumentNotOpen(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Document("/ws/none.build")
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = env.Analyze(context.Background(), "/ws/none.build")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, env.CloseDocument("/ws/none.build"), ErrNotOpen)

	env.OpenText("/ws/one.build", "x = 1\n")
	require.NoError(t, env.CloseDocument("/ws/one.build"))
	assert.Empty(t, env.TrackedPaths())
}

func TestEnvironment_OpenTextReplacesContent(t *testing.T) {
	env := newTestEnv(t)
	_, first := openSettled(t, env, "/ws/main.build", "x = 1\n")

	d := env.OpenText("/ws/main.build", "x = 2\n")
	snap, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, snap)
	assert.Equal(t, "x = 2\n", snap.Text)
}

func TestEnvironment_WithRegistry(t *testing.T) {
	c, err := registry.ParseCatalog([]byte(yamlCatalog))
	require.NoError(t, err)
	p, err := c.Provider()
	require.NoError(t, err)
	env := newTestEnv(t, WithRegistry(p))

	name := registry.NewTaskName("example.bake")
	assert.NotNil(t, env.Provider().TaskInformation(name)[name])
	builtin := registry.NewTaskName("print")
	assert.NotNil(t, env.Provider().TaskInformation(builtin)[builtin], "builtin tasks stay available")
}

func TestEnvironment_CatalogWritesResetCache(t *testing.T) {
	env := newTestEnv(t, WithCatalog(filepath.Join(t.TempDir(), "catalog.db")))
	require.NotNil(t, env.Catalog())

	name := registry.NewTaskName("saker.java.compile")
	assert.Empty(t, env.Provider().TaskInformation(name))

	require.NoError(t, env.Catalog().RunScript(context.Background(), "saker"))
	assert.NotNil(t, env.Provider().TaskInformation(name)[name])
}

func TestNew_InvalidCatalog(t *testing.T) {
	_, err := New(WithCatalog("/nonexistent/dir/catalog.db"))
	require.Error(t, err)
}
