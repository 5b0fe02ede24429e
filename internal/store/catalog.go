package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// --- Source operations ---

// UpsertSource records a scanned source, updating hash and timestamp when the
// path is already known. It returns the source ID.
func (s *Store) UpsertSource(src *Source) (int64, error) {
	_, err := s.db.Exec(
		`INSERT INTO sources (path, language, hash, last_indexed) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET language = excluded.language, hash = excluded.hash, last_indexed = excluded.last_indexed`,
		src.Path, src.Language, src.Hash, src.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert source: %w", err)
	}
	if err := s.db.QueryRow("SELECT id FROM sources WHERE path = ?", src.Path).Scan(&src.ID); err != nil {
		return 0, fmt.Errorf("source id: %w", err)
	}
	return src.ID, nil
}

func (s *Store) SourceByPath(path string) (*Source, error) {
	src := &Source{}
	var hash sql.NullString
	var indexed sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, path, language, hash, last_indexed FROM sources WHERE path = ?", path,
	).Scan(&src.ID, &src.Path, &src.Language, &hash, &indexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source by path: %w", err)
	}
	src.Hash = hash.String
	src.LastIndexed = indexed.Time
	return src, nil
}

// --- Type operations ---

// InsertType stores t, replacing any type of the same name together with its
// fields.
func (s *Store) InsertType(t *Type) (int64, error) {
	return s.inTx(func(tx *sql.Tx) (int64, error) { return replaceTypeTx(tx, t) })
}

func (s *Store) InsertField(f *Field) (int64, error) {
	return s.inTx(func(tx *sql.Tx) (int64, error) { return insertFieldTx(tx, f) })
}

func replaceTypeTx(tx *sql.Tx, t *Type) (int64, error) {
	if _, err := tx.Exec("DELETE FROM type_fields WHERE type_id IN (SELECT id FROM types WHERE name = ?)", t.Name); err != nil {
		return 0, fmt.Errorf("delete type fields: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM types WHERE name = ?", t.Name); err != nil {
		return 0, fmt.Errorf("delete type: %w", err)
	}
	res, err := tx.Exec(
		`INSERT INTO types (source_id, name, kind, qualified_name, simple_name, info, elements, super_types, deprecated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SourceID, t.Name, t.Kind, t.QualifiedName, t.SimpleName, t.Info,
		marshalStrings(t.Elements), marshalStrings(t.SuperTypes), t.Deprecated,
	)
	if err != nil {
		return 0, fmt.Errorf("insert type %q: %w", t.Name, err)
	}
	return lastID(res, &t.ID)
}

func insertFieldTx(tx *sql.Tx, f *Field) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO type_fields (type_id, ordinal, name, type_ref, info, is_enum, deprecated)
		 VALUES (?, (SELECT COUNT(*) FROM type_fields WHERE type_id = ?), ?, ?, ?, ?, ?)`,
		f.TypeID, f.TypeID, f.Name, f.TypeRef, f.Info, f.Enum, f.Deprecated,
	)
	if err != nil {
		return 0, fmt.Errorf("insert field %q: %w", f.Name, err)
	}
	return lastID(res, &f.ID)
}

const typeCols = `id, source_id, name, kind, qualified_name, simple_name, info, elements, super_types, deprecated`

func scanType(scanner interface{ Scan(...any) error }) (*Type, error) {
	t := &Type{}
	var qn, sn, info, elems, supers sql.NullString
	if err := scanner.Scan(&t.ID, &t.SourceID, &t.Name, &t.Kind, &qn, &sn, &info, &elems, &supers, &t.Deprecated); err != nil {
		return nil, err
	}
	t.QualifiedName, t.SimpleName, t.Info = qn.String, sn.String, info.String
	t.Elements = unmarshalStrings(elems.String)
	t.SuperTypes = unmarshalStrings(supers.String)
	return t, nil
}

func (s *Store) TypeByName(name string) (*Type, error) {
	t, err := scanType(s.db.QueryRow("SELECT "+typeCols+" FROM types WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("type by name: %w", err)
	}
	return t, nil
}

// Types returns every type ordered by name.
func (s *Store) Types() ([]*Type, error) {
	rows, err := s.db.Query("SELECT " + typeCols + " FROM types ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	defer rows.Close()
	var out []*Type
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FieldsByType returns the fields and enum values of a type in declaration
// order.
func (s *Store) FieldsByType(typeID int64) ([]*Field, error) {
	rows, err := s.db.Query(
		"SELECT id, type_id, ordinal, name, type_ref, info, is_enum, deprecated FROM type_fields WHERE type_id = ? ORDER BY ordinal", typeID,
	)
	if err != nil {
		return nil, fmt.Errorf("fields by type: %w", err)
	}
	defer rows.Close()
	var out []*Field
	for rows.Next() {
		f := &Field{}
		var ref, info sql.NullString
		if err := rows.Scan(&f.ID, &f.TypeID, &f.Ordinal, &f.Name, &ref, &info, &f.Enum, &f.Deprecated); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		f.TypeRef, f.Info = ref.String, info.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Task operations ---

// InsertTask stores t, replacing any task of the same name together with its
// parameters.
func (s *Store) InsertTask(t *Task) (int64, error) {
	return s.inTx(func(tx *sql.Tx) (int64, error) { return replaceTaskTx(tx, t) })
}

func (s *Store) InsertParameter(p *Parameter) (int64, error) {
	return s.inTx(func(tx *sql.Tx) (int64, error) { return insertParameterTx(tx, p) })
}

func replaceTaskTx(tx *sql.Tx, t *Task) (int64, error) {
	if _, err := tx.Exec("DELETE FROM task_parameters WHERE task_id IN (SELECT id FROM tasks WHERE name = ?)", t.Name); err != nil {
		return 0, fmt.Errorf("delete task parameters: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM tasks WHERE name = ?", t.Name); err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}
	res, err := tx.Exec(
		"INSERT INTO tasks (source_id, name, info, returns, deprecated) VALUES (?, ?, ?, ?, ?)",
		t.SourceID, t.Name, t.Info, t.Returns, t.Deprecated,
	)
	if err != nil {
		return 0, fmt.Errorf("insert task %q: %w", t.Name, err)
	}
	return lastID(res, &t.ID)
}

func insertParameterTx(tx *sql.Tx, p *Parameter) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO task_parameters (task_id, ordinal, name, aliases, type_ref, info, required, deprecated)
		 VALUES (?, (SELECT COUNT(*) FROM task_parameters WHERE task_id = ?), ?, ?, ?, ?, ?, ?)`,
		p.TaskID, p.TaskID, p.Name, marshalStrings(p.Aliases), p.TypeRef, p.Info, p.Required, p.Deprecated,
	)
	if err != nil {
		return 0, fmt.Errorf("insert parameter %q: %w", p.Name, err)
	}
	return lastID(res, &p.ID)
}

const taskCols = `id, source_id, name, info, returns, deprecated`

func scanTask(scanner interface{ Scan(...any) error }) (*Task, error) {
	t := &Task{}
	var info, returns sql.NullString
	if err := scanner.Scan(&t.ID, &t.SourceID, &t.Name, &info, &returns, &t.Deprecated); err != nil {
		return nil, err
	}
	t.Info, t.Returns = info.String, returns.String
	return t, nil
}

func (s *Store) queryTasks(query string, args ...any) ([]*Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) TaskByName(name string) (*Task, error) {
	t, err := scanTask(s.db.QueryRow("SELECT "+taskCols+" FROM tasks WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("task by name: %w", err)
	}
	return t, nil
}

// TasksByPrefix returns the tasks whose full name starts with prefix, case
// insensitively.
func (s *Store) TasksByPrefix(prefix string) ([]*Task, error) {
	tasks, err := s.queryTasks("SELECT "+taskCols+" FROM tasks WHERE name LIKE ? ESCAPE '\\' ORDER BY name", likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("tasks by prefix: %w", err)
	}
	return tasks, nil
}

// TasksBySimpleName returns the task called name and all of its qualified
// variants.
func (s *Store) TasksBySimpleName(name string) ([]*Task, error) {
	tasks, err := s.queryTasks(
		"SELECT "+taskCols+" FROM tasks WHERE name = ? OR name LIKE ? ESCAPE '\\' ORDER BY name",
		name, likePrefix(name+"-"),
	)
	if err != nil {
		return nil, fmt.Errorf("tasks by simple name: %w", err)
	}
	return tasks, nil
}

// AllTasks returns every task ordered by name.
func (s *Store) AllTasks() ([]*Task, error) {
	tasks, err := s.queryTasks("SELECT " + taskCols + " FROM tasks ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("all tasks: %w", err)
	}
	return tasks, nil
}

// ParametersByTask returns the parameters of a task in declaration order.
func (s *Store) ParametersByTask(taskID int64) ([]*Parameter, error) {
	rows, err := s.db.Query(
		"SELECT id, task_id, ordinal, name, aliases, type_ref, info, required, deprecated FROM task_parameters WHERE task_id = ? ORDER BY ordinal", taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("parameters by task: %w", err)
	}
	defer rows.Close()
	var out []*Parameter
	for rows.Next() {
		p := &Parameter{}
		var aliases, ref, info sql.NullString
		if err := rows.Scan(&p.ID, &p.TaskID, &p.Ordinal, &p.Name, &aliases, &ref, &info, &p.Required, &p.Deprecated); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		p.Aliases = unmarshalStrings(aliases.String)
		p.TypeRef, p.Info = ref.String, info.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Literal operations ---

func (s *Store) InsertLiteral(l *Literal) (int64, error) {
	return s.inTx(func(tx *sql.Tx) (int64, error) { return insertLiteralTx(tx, l) })
}

func insertLiteralTx(tx *sql.Tx, l *Literal) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO literals (source_id, literal, type_ref, info, relation) VALUES (?, ?, ?, ?, ?)",
		l.SourceID, l.Literal, l.TypeRef, l.Info, l.Relation,
	)
	if err != nil {
		return 0, fmt.Errorf("insert literal %q: %w", l.Literal, err)
	}
	return lastID(res, &l.ID)
}

func (s *Store) queryLiterals(query string, args ...any) ([]*Literal, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Literal
	for rows.Next() {
		l := &Literal{}
		var ref, info, rel sql.NullString
		if err := rows.Scan(&l.ID, &l.SourceID, &l.Literal, &ref, &info, &rel); err != nil {
			return nil, fmt.Errorf("scan literal: %w", err)
		}
		l.TypeRef, l.Info, l.Relation = ref.String, info.String, rel.String
		out = append(out, l)
	}
	return out, rows.Err()
}

// LiteralsByPrefix returns the literals starting with prefix, case
// insensitively, in insertion order.
func (s *Store) LiteralsByPrefix(prefix string) ([]*Literal, error) {
	ls, err := s.queryLiterals(
		"SELECT id, source_id, literal, type_ref, info, relation FROM literals WHERE literal LIKE ? ESCAPE '\\' ORDER BY id",
		likePrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("literals by prefix: %w", err)
	}
	return ls, nil
}

// LiteralsByValue returns the literals spelled exactly literal.
func (s *Store) LiteralsByValue(literal string) ([]*Literal, error) {
	ls, err := s.queryLiterals(
		"SELECT id, source_id, literal, type_ref, info, relation FROM literals WHERE literal = ? ORDER BY id", literal,
	)
	if err != nil {
		return nil, fmt.Errorf("literals by value: %w", err)
	}
	return ls, nil
}

// --- Metadata ---

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return v, nil
}

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

// Stats counts the rows of the catalog tables.
type Stats struct {
	Sources, Types, Tasks, Parameters, Literals int
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	for _, c := range []struct {
		table string
		dst   *int
	}{
		{"sources", &st.Sources},
		{"types", &st.Types},
		{"tasks", &st.Tasks},
		{"task_parameters", &st.Parameters},
		{"literals", &st.Literals},
	} {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return st, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return st, nil
}

// MarkIndexed records the time of the last completed import or scan.
func (s *Store) MarkIndexed(at time.Time) error {
	return s.SetMetadata("last_indexed", at.UTC().Format(time.RFC3339))
}

func (s *Store) inTx(fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	id, err := fn(tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.touch()
	return id, nil
}

func lastID(res sql.Result, dst *int64) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	*dst = id
	return id, nil
}

func sortedTypeNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
