package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/runtime"
	"github.com/jward/buildscope/internal/store"
	"github.com/jward/buildscope/scripts"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSakerCatalog_DefinesTasks(t *testing.T) {
	s := newTestStore(t)
	rt := runtime.NewRuntime(s, "", runtime.WithRuntimeFS(scripts.FS))
	require.NoError(t, rt.RunScript(context.Background(), runtime.CatalogScriptPath("saker"), nil))

	p := registry.NewCaching(registry.Chain{registry.Builtin(), store.NewProvider(s, nil)})

	tasks := p.Tasks("saker.j")
	assert.Contains(t, tasks, registry.NewTaskName("saker.java.compile"))
	assert.Contains(t, tasks, registry.NewTaskName("saker.jar.create"))

	name := registry.NewTaskName("saker.java.compile")
	out := p.TaskInformation(name)[name]
	require.NotNil(t, out)
	require.NotNil(t, out.ReturnType)
	assert.Contains(t, out.ReturnType.Fields, "ClassDirectory")

	version := p.TaskParameterInformation(name, "SourceVersion")[name]
	require.NotNil(t, version)
	assert.Equal(t, registry.KindEnum, version.Type.Kind)
	assert.Contains(t, version.Type.SortedEnumNames(), "RELEASE_17")

	unnamed := p.TaskParameterInformation(name, "")[name]
	require.NotNil(t, unnamed, "SourceDirectories is the unnamed parameter")
	assert.Equal(t, "SourceDirectories", unnamed.Name)
}

func TestSakerCatalog_Idempotent(t *testing.T) {
	s := newTestStore(t)
	rt := runtime.NewRuntime(s, "", runtime.WithRuntimeFS(scripts.FS))
	ctx := context.Background()
	require.NoError(t, rt.RunScript(ctx, runtime.CatalogScriptPath("saker"), nil))
	first, err := s.Stats()
	require.NoError(t, err)

	require.NoError(t, rt.RunScript(ctx, runtime.CatalogScriptPath("saker"), nil))
	second, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, first.Tasks, second.Tasks, "tasks are replaced by name")
	assert.Equal(t, first.Parameters, second.Parameters)
	assert.Equal(t, first.Types, second.Types)
}
