package buildscope

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/buildscope/internal/registry"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const archiveFactorySource = `package example.archive;

@NestTaskInformation(name = "example.archive", returns = "ArchiveOutput", info = "Creates an archive.")
@NestParameterInformation(value = "Input", aliases = { "" }, type = "FILE_PATH", required = true)
public class ArchiveTaskFactory {
}

@NestTypeInformation(info = "Archive result.")
class ArchiveOutput {
	@NestFieldInformation(info = "Output path.")
	public String path;
}
`

const yamlCatalog = `
types:
  Flavor:
    kind: ENUM
    enum:
      - name: PLAIN
      - name: FANCY
tasks:
  - name: example.bake
    info: Bakes things.
    parameters:
      - name: Flavor
        type: Flavor
`

// =============================================================================
// Scanning
// =============================================================================

func TestCatalog_ScanDirectory(t *testing.T) {
	c := newTestCatalog(t)
	root := t.TempDir()
	writeFile(t, root, "src/ArchiveTaskFactory.java", archiveFactorySource)
	writeFile(t, root, "src/README.md", "not a source")
	writeFile(t, root, "node_modules/Ignored.java", `@NestTaskInformation(name = "ignored") class Ignored {}`)

	require.NoError(t, c.ScanDirectory(context.Background(), root))

	task, err := c.Store().TaskByName("example.archive")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Creates an archive.", task.Info)

	ignored, err := c.Store().TaskByName("ignored")
	require.NoError(t, err)
	assert.Nil(t, ignored, "skipped directories are not scanned")

	out, err := c.Store().TypeByName("ArchiveOutput")
	require.NoError(t, err)
	require.NotNil(t, out)
	fields, err := c.Store().FieldsByType(out.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "path", fields[0].Name)
}

func TestCatalog_ScanSkipsUnchanged(t *testing.T) {
	c := newTestCatalog(t)
	root := t.TempDir()
	path := writeFile(t, root, "ArchiveTaskFactory.java", archiveFactorySource)
	ctx := context.Background()

	require.NoError(t, c.ScanFiles(ctx, []string{path}))
	first, err := c.Store().TaskByName("example.archive")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, c.ScanFiles(ctx, []string{path}))
	again, err := c.Store().TaskByName("example.archive")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "unchanged source is not extracted again")
}

func TestCatalog_RescanReplacesSource(t *testing.T) {
	c := newTestCatalog(t)
	root := t.TempDir()
	path := writeFile(t, root, "ArchiveTaskFactory.java", archiveFactorySource)
	ctx := context.Background()
	require.NoError(t, c.ScanFiles(ctx, []string{path}))

	writeFile(t, root, "ArchiveTaskFactory.java", `package example.archive;

@NestTaskInformation(name = "example.unarchive")
public class UnarchiveTaskFactory {
}
`)
	require.NoError(t, c.ScanFiles(ctx, []string{path}))

	old, err := c.Store().TaskByName("example.archive")
	require.NoError(t, err)
	assert.Nil(t, old, "rows of the previous content are removed")
	task, err := c.Store().TaskByName("example.unarchive")
	require.NoError(t, err)
	assert.NotNil(t, task)
}

func TestCatalog_ScanUnsupportedFiles(t *testing.T) {
	c := newTestCatalog(t)
	path := writeFile(t, t.TempDir(), "notes.txt", "hello")
	require.NoError(t, c.ScanFiles(context.Background(), []string{path}))

	st, err := c.Store().Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Sources)
}

func TestCatalog_ScanMissingFile(t *testing.T) {
	c := newTestCatalog(t)
	err := c.ScanFiles(context.Background(), []string{filepath.Join(t.TempDir(), "Missing.java")})
	require.Error(t, err)
}

// =============================================================================
// Catalog files and scripts
// =============================================================================

func TestCatalog_ImportFile(t *testing.T) {
	c := newTestCatalog(t)
	path := writeFile(t, t.TempDir(), "catalog.yaml", yamlCatalog)
	require.NoError(t, c.ImportFile(path))

	name := registry.NewTaskName("example.bake")
	info := c.Provider().TaskInformation(name)[name]
	require.NotNil(t, info)
	assert.Equal(t, "Bakes things.", info.Info.String())

	flavor := c.Provider().TaskParameterInformation(name, "Flavor")[name]
	require.NotNil(t, flavor)
	assert.Equal(t, []string{"FANCY", "PLAIN"}, flavor.Type.SortedEnumNames())

	require.NoError(t, c.ImportFile(path), "reimport is a no-op")
	st, err := c.Store().Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Tasks)
}

func TestCatalog_ImportInvalidFile(t *testing.T) {
	c := newTestCatalog(t)
	path := writeFile(t, t.TempDir(), "catalog.yaml", "tasks: [unterminated")
	require.Error(t, c.ImportFile(path))
}

func TestCatalog_RunScript(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.RunScript(context.Background(), "saker"))

	task, err := c.Store().TaskByName("saker.java.compile")
	require.NoError(t, err)
	assert.NotNil(t, task)

	require.Error(t, c.RunScript(context.Background(), "no-such-script"))
}

func TestCatalog_ScriptsChanged(t *testing.T) {
	c := newTestCatalog(t)
	assert.True(t, c.ScriptsChanged(), "no hash stored yet")

	require.NoError(t, c.RunScript(context.Background(), "saker"))
	assert.False(t, c.ScriptsChanged())
}

func TestCatalog_ScriptsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "catalog/tiny.risor", `define_task({"name": "tiny.task", "info": "Tiny."})`)

	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"), dir)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RunScript(context.Background(), "tiny"))
	task, err := c.Store().TaskByName("tiny.task")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Tiny.", task.Info)
}

func TestOpenCatalog_InvalidPath(t *testing.T) {
	_, err := OpenCatalog("/nonexistent/dir/catalog.db", "")
	require.Error(t, err)
}
