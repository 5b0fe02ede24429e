package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchedStore_FakeIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore(s)
	assert.True(t, batch.Empty())

	id1, err := batch.InsertTask(&Task{Name: "a"})
	require.NoError(t, err)
	assert.Negative(t, id1, "batched IDs should be negative")
	id2, err := batch.InsertType(&Type{Name: "T", Kind: "OBJECT"})
	require.NoError(t, err)
	assert.Less(t, id2, id1)
	assert.False(t, batch.Empty())

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Tasks, "nothing reaches SQLite before commit")
}

func TestBatchedStore_LookupsMergeWithDatabase(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestTask(t, s, "existing")

	batch := NewBatchedStore(s)
	_, err := batch.InsertTask(&Task{Name: "buffered"})
	require.NoError(t, err)

	got, err := batch.TaskByName("buffered")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Negative(t, got.ID)

	got, err = batch.TaskByName("existing")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Positive(t, got.ID)

	got, err = batch.TaskByName("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	typ, err := batch.TypeByName("missing")
	require.NoError(t, err)
	assert.Nil(t, typ)
}

func TestCommitBatch_RemapsIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	existing := insertTestTask(t, s, "existing")

	batch := NewBatchedStore(s)
	typ := &Type{Name: "Mode", Kind: "ENUM"}
	_, err := batch.InsertType(typ)
	require.NoError(t, err)
	_, err = batch.InsertField(&Field{TypeID: typ.ID, Name: "FAST", Enum: true})
	require.NoError(t, err)
	task := &Task{Name: "run", Returns: "Mode"}
	_, err = batch.InsertTask(task)
	require.NoError(t, err)
	_, err = batch.InsertParameter(&Parameter{TaskID: task.ID, Name: "Mode", TypeRef: "Mode"})
	require.NoError(t, err)
	_, err = batch.InsertParameter(&Parameter{TaskID: existing.ID, Name: "Extra"})
	require.NoError(t, err)
	_, err = batch.InsertLiteral(&Literal{Literal: "FAST", TypeRef: "Mode"})
	require.NoError(t, err)

	require.NoError(t, s.CommitBatch(batch))

	run, err := s.TaskByName("run")
	require.NoError(t, err)
	require.NotNil(t, run)
	params, err := s.ParametersByTask(run.ID)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "Mode", params[0].Name)

	params, err = s.ParametersByTask(existing.ID)
	require.NoError(t, err)
	require.Len(t, params, 1, "real task IDs pass through unchanged")

	mode, err := s.TypeByName("Mode")
	require.NoError(t, err)
	require.NotNil(t, mode)
	fields, err := s.FieldsByType(mode.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "FAST", fields[0].Name)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Literals)
}

func TestCommitBatch_UnknownFakeID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore(s)
	_, err := batch.InsertParameter(&Parameter{TaskID: -42, Name: "X"})
	require.NoError(t, err)

	err = s.CommitBatch(batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task_id=-42")
}
