package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeloom/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestStore(t)

	p, err := s.CreateProject("landing page")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	got, err := s.GetProject(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "landing page", got.Name)

	missing, err := s.GetProject("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.TouchProject(p.ID))
	touched, err := s.GetProject(p.ID)
	require.NoError(t, err)
	assert.False(t, touched.UpdatedAt.Before(got.UpdatedAt))
}

func TestMessagesOrderedAndLastUserLookup(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("p")
	require.NoError(t, err)

	none, err := s.LastUserMessage(p.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.InsertMessage(p.ID, types.RoleUser, "first")
	require.NoError(t, err)
	_, err = s.InsertMessage(p.ID, types.RoleAssistant, "reply")
	require.NoError(t, err)
	_, err = s.InsertMessage(p.ID, types.RoleUser, "second")
	require.NoError(t, err)

	msgs, err := s.ListMessages(p.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "reply", msgs[1].Content)
	assert.Equal(t, "second", msgs[2].Content)

	last, err := s.LastUserMessage(p.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "second", last.Content)
	assert.Equal(t, types.RoleUser, last.Role)
}

func TestFileRevisionLineage(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("p")
	require.NoError(t, err)

	rev1, err := s.InsertFile(p.ID, "m1", "src/App.tsx", "tsx", "v1", 1, 0)
	require.NoError(t, err)
	rev2, err := s.InsertFile(p.ID, "m2", "src/App.tsx", "tsx", "v2\nv2", 1, 0)
	require.NoError(t, err)
	_, err = s.InsertFile(p.ID, "m2", "src/Other.tsx", "tsx", "other", 1, 0)
	require.NoError(t, err)

	latest, err := s.LatestFileByPath(p.ID, "src/App.tsx")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, rev2.ID, latest.ID)
	assert.Equal(t, "v2\nv2", latest.Content)

	prev, err := s.PreviousFileRevision(rev2.ID)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, rev1.ID, prev.ID)

	first, err := s.PreviousFileRevision(rev1.ID)
	require.NoError(t, err)
	assert.Nil(t, first)

	never, err := s.LatestFileByPath(p.ID, "src/Missing.tsx")
	require.NoError(t, err)
	assert.Nil(t, never)
}

func TestLatestFilesSnapshot(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("p")
	require.NoError(t, err)

	_, err = s.InsertFile(p.ID, "m1", "a.ts", "ts", "a-old", 1, 0)
	require.NoError(t, err)
	_, err = s.InsertFile(p.ID, "m2", "a.ts", "ts", "a-new", 0, 0)
	require.NoError(t, err)
	_, err = s.InsertFile(p.ID, "m2", "b.ts", "ts", "b", 1, 0)
	require.NoError(t, err)

	snap, err := s.LatestFilesSnapshot(p.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.ts": "a-new", "b.ts": "b"}, snap)

	empty, err := s.LatestFilesSnapshot("other-project")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestArtifactRoundTripPreservesFileOrder(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("p")
	require.NoError(t, err)

	ids := []string{"f-3", "f-1", "f-2"}
	a, err := s.InsertArtifact(p.ID, "m1", "Counter app", ids)
	require.NoError(t, err)

	got, err := s.GetArtifact(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Counter app", got.Title)
	assert.Equal(t, ids, got.FileIDs)
}

func TestGetFileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("p")
	require.NoError(t, err)

	rec, err := s.InsertFile(p.ID, "m1", "x.go", "go", "package x\n", 2, 0)
	require.NoError(t, err)

	got, err := s.GetFile(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x.go", got.Path)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, 2, got.Additions)
	assert.Equal(t, 0, got.Deletions)

	missing, err := s.GetFile("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
