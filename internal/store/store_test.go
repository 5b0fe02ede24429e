package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jward/buildscope/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// insertTestTask inserts a task with the given parameters and returns it with
// ID set.
func insertTestTask(t *testing.T, s *Store, name string, params ...string) *Task {
	t.Helper()
	task := &Task{Name: name, Info: name + " task."}
	id, err := s.InsertTask(task)
	require.NoError(t, err)
	require.Positive(t, id)
	for _, p := range params {
		_, err := s.InsertParameter(&Parameter{TaskID: id, Name: p, TypeRef: "STRING"})
		require.NoError(t, err)
	}
	return task
}

const sampleCatalog = `
types:
  Level:
    kind: ENUM
    qualified_name: example.Level
    enum:
      - name: LOW
        info: Low level.
      - name: HIGH
  Options:
    qualified_name: example.Options
    fields:
      - name: Level
        type: Level
      - name: Files
        type: Files
  Files:
    kind: COLLECTION
    elements: [FILE_PATH]
tasks:
  - name: archive
    info: Creates an archive.
    returns: Options
    parameters:
      - name: Input
        aliases: [""]
        type: Files
        required: true
      - name: Level
        type: Level
  - name: archive-zip
    parameters:
      - name: Comment
        type: STRING
literals:
  - literal: archive.default
    type: Options
    info: The default options.
  - literal: other
    type: STRING
`

func importSample(t *testing.T, s *Store) {
	t.Helper()
	c, err := registry.ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.NoError(t, s.ImportCatalog(c, nil))
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"sources", "types", "type_fields", "tasks", "task_parameters", "literals", "metadata",
	}

	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestStore_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Sources
// =============================================================================

func TestUpsertSource_InsertThenUpdate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	src := &Source{Path: "/src/Archive.java", Language: "java", Hash: "h1", LastIndexed: time.Now().Truncate(time.Second)}
	id, err := s.UpsertSource(src)
	require.NoError(t, err)
	require.Positive(t, id)

	again := &Source{Path: "/src/Archive.java", Language: "java", Hash: "h2"}
	id2, err := s.UpsertSource(again)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	got, err := s.SourceByPath("/src/Archive.java")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h2", got.Hash)
	assert.Equal(t, "java", got.Language)
}

func TestSourceByPath_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.SourceByPath("/missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnchanged(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	hash := ContentHash([]byte("class A {}"))
	_, err := s.UpsertSource(&Source{Path: "/A.java", Language: "java", Hash: hash})
	require.NoError(t, err)

	same, err := s.Unchanged("/A.java", hash)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = s.Unchanged("/A.java", ContentHash([]byte("class A { int x; }")))
	require.NoError(t, err)
	assert.False(t, same)

	same, err = s.Unchanged("/B.java", hash)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestDeleteSourceData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	srcID, err := s.UpsertSource(&Source{Path: "/A.java", Language: "java"})
	require.NoError(t, err)

	task := &Task{SourceID: &srcID, Name: "fromsource"}
	_, err = s.InsertTask(task)
	require.NoError(t, err)
	_, err = s.InsertParameter(&Parameter{TaskID: task.ID, Name: "P"})
	require.NoError(t, err)
	typ := &Type{SourceID: &srcID, Name: "T", Kind: "OBJECT"}
	_, err = s.InsertType(typ)
	require.NoError(t, err)
	_, err = s.InsertField(&Field{TypeID: typ.ID, Name: "F"})
	require.NoError(t, err)
	_, err = s.InsertLiteral(&Literal{SourceID: &srcID, Literal: "lit"})
	require.NoError(t, err)
	insertTestTask(t, s, "kept")

	require.NoError(t, s.DeleteSourceData(srcID))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Sources: 1, Tasks: 1}, st)
	got, err := s.TaskByName("kept")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// =============================================================================
// Tasks, types and literals
// =============================================================================

func TestInsertTask_ReplacesParameters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestTask(t, s, "compile", "A", "B")
	task := insertTestTask(t, s, "compile", "C")

	params, err := s.ParametersByTask(task.ID)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "C", params[0].Name)

	var orphans int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM task_parameters").Scan(&orphans))
	assert.Equal(t, 1, orphans)
}

func TestParametersByTask_Ordinals(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	task := insertTestTask(t, s, "compile", "First", "Second", "Third")

	params, err := s.ParametersByTask(task.ID)
	require.NoError(t, err)
	require.Len(t, params, 3)
	for i, p := range params {
		assert.Equal(t, i, p.Ordinal)
	}
	assert.Equal(t, "Third", params[2].Name)
}

func TestParameter_Aliases(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	task := insertTestTask(t, s, "compile")
	_, err := s.InsertParameter(&Parameter{TaskID: task.ID, Name: "Input", Aliases: []string{"", "Sources"}, Required: true})
	require.NoError(t, err)

	params, err := s.ParametersByTask(task.ID)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, []string{"", "Sources"}, params[0].Aliases)
	assert.True(t, params[0].Required)
}

func TestTasksByPrefix_CaseInsensitive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestTask(t, s, "compile")
	insertTestTask(t, s, "compile-java")
	insertTestTask(t, s, "copy")
	insertTestTask(t, s, "under_score")

	tasks, err := s.TasksByPrefix("COMP")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "compile", tasks[0].Name)
	assert.Equal(t, "compile-java", tasks[1].Name)

	tasks, err = s.TasksByPrefix("under_")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	tasks, err = s.TasksByPrefix("unde%")
	require.NoError(t, err)
	assert.Empty(t, tasks, "LIKE wildcards are escaped")
}

func TestTasksBySimpleName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestTask(t, s, "compile")
	insertTestTask(t, s, "compile-java")
	insertTestTask(t, s, "compiler")

	tasks, err := s.TasksBySimpleName("compile")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "compile", tasks[0].Name)
	assert.Equal(t, "compile-java", tasks[1].Name)
}

func TestTaskByName_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.TaskByName("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTypeFields_EnumAndFields(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	typ := &Type{Name: "Mode", Kind: "ENUM", QualifiedName: "x.Mode", Elements: []string{"STRING"}}
	_, err := s.InsertType(typ)
	require.NoError(t, err)
	_, err = s.InsertField(&Field{TypeID: typ.ID, Name: "FAST", Enum: true, Info: "Fast."})
	require.NoError(t, err)
	_, err = s.InsertField(&Field{TypeID: typ.ID, Name: "Size", TypeRef: "NUMBER"})
	require.NoError(t, err)

	got, err := s.TypeByName("Mode")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x.Mode", got.QualifiedName)
	assert.Equal(t, []string{"STRING"}, got.Elements)
	assert.Nil(t, got.SuperTypes)

	fields, err := s.FieldsByType(typ.ID)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.True(t, fields[0].Enum)
	assert.Equal(t, "Fast.", fields[0].Info)
	assert.False(t, fields[1].Enum)
	assert.Equal(t, 1, fields[1].Ordinal)
}

func TestLiterals(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	for _, l := range []string{"alpha", "Alphabet", "beta"} {
		_, err := s.InsertLiteral(&Literal{Literal: l, TypeRef: "STRING"})
		require.NoError(t, err)
	}

	ls, err := s.LiteralsByPrefix("alp")
	require.NoError(t, err)
	require.Len(t, ls, 2)
	assert.Equal(t, "alpha", ls[0].Literal)

	ls, err = s.LiteralsByValue("beta")
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, "STRING", ls[0].TypeRef)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("k", "1"))
	require.NoError(t, s.SetMetadata("k", "2"))
	v, err = s.GetMetadata("k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.MarkIndexed(at))
	v, err = s.GetMetadata("last_indexed")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", v)
}

func TestGeneration_BumpsOnWrite(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	g := s.Generation()
	insertTestTask(t, s, "compile")
	assert.Greater(t, s.Generation(), g)
}

// =============================================================================
// Catalog round trip
// =============================================================================

func TestImportCatalog_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	importSample(t, s)

	c, err := s.Catalog()
	require.NoError(t, err)
	require.Len(t, c.Types, 3)
	assert.Equal(t, registry.KindObject, c.Types["Options"].Kind, "missing kind defaults to OBJECT")
	assert.Equal(t, []string{"FILE_PATH"}, c.Types["Files"].Elements)
	require.Len(t, c.Types["Level"].Enum, 2)
	assert.Equal(t, "LOW", c.Types["Level"].Enum[0].Name)
	assert.Equal(t, "Low level.", c.Types["Level"].Enum[0].Info)

	require.Len(t, c.Tasks, 2)
	assert.Equal(t, "archive", c.Tasks[0].Name)
	require.Len(t, c.Tasks[0].Parameters, 2)
	assert.Equal(t, []string{""}, c.Tasks[0].Parameters[0].Aliases)
	assert.True(t, c.Tasks[0].Parameters[0].Required)

	require.Len(t, c.Literals, 2)
	assert.Equal(t, "archive.default", c.Literals[0].Literal)

	p, err := c.Provider()
	require.NoError(t, err)
	infos := p.TaskInformation(registry.NewTaskName("archive"))
	assert.Len(t, infos, 2)
}

func TestImportCatalog_Replaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	importSample(t, s)
	importSample(t, s)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Types)
	assert.Equal(t, 2, st.Tasks)
	assert.Equal(t, 3, st.Parameters)
	assert.Equal(t, 4, st.Literals, "literals accumulate")
}

func TestImportCatalog_SourceScoped(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	srcID, err := s.UpsertSource(&Source{Path: "catalog.yaml", Language: "yaml"})
	require.NoError(t, err)
	c, err := registry.ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.NoError(t, s.ImportCatalog(c, ptr(srcID)))

	require.NoError(t, s.DeleteSourceData(srcID))
	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Sources: 1}, st)
}
