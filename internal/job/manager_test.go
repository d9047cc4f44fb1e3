package job

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/pdfsplit"
)

func newTestJob(t *testing.T, pages int) *PendingJob {
	t.Helper()
	tempDir, err := os.MkdirTemp(t.TempDir(), "job")
	require.NoError(t, err)

	list := make([]pdfsplit.Page, 0, pages)
	for i := 1; i <= pages; i++ {
		path := filepath.Join(tempDir, "page.pdf")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		list = append(list, pdfsplit.Page{
			Path:         path,
			OriginalName: "doc.pdf",
			PageNumber:   i,
			TotalPages:   pages,
		})
	}
	return &PendingJob{SessionID: "s1", TempDir: tempDir, Pages: list}
}

func TestPrepareFetchThenIncrement(t *testing.T) {
	m := NewManager(nil)
	j := newTestJob(t, 3)
	id := m.Add(j)

	for want := 1; want <= 3; want++ {
		page, done, err := m.Prepare(id)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, want, page.PageNumber)
	}

	// Exhausted: done signal, job dropped, temp storage released.
	_, done, err := m.Prepare(id)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, m.Len())
	_, err = os.Stat(j.TempDir)
	assert.True(t, os.IsNotExist(err))

	// The job is gone now.
	_, _, err = m.Prepare(id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRollbackRetriesSamePage(t *testing.T) {
	m := NewManager(nil)
	id := m.Add(newTestJob(t, 2))

	page, _, err := m.Prepare(id)
	require.NoError(t, err)
	assert.Equal(t, 1, page.PageNumber)

	m.Rollback(id)
	page, _, err = m.Prepare(id)
	require.NoError(t, err)
	assert.Equal(t, 1, page.PageNumber)
}

func TestRollbackFloorsAtZero(t *testing.T) {
	m := NewManager(nil)
	id := m.Add(newTestJob(t, 1))

	m.Rollback(id)
	m.Rollback(id)

	page, done, err := m.Prepare(id)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, page.PageNumber)
}

func TestCancelReleasesTempStorage(t *testing.T) {
	m := NewManager(nil)
	j := newTestJob(t, 2)
	id := m.Add(j)

	require.NoError(t, m.Cancel(id))
	assert.Zero(t, m.Len())
	_, err := os.Stat(j.TempDir)
	assert.True(t, os.IsNotExist(err))

	err = m.Cancel(id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestFinishOnlyDropsExhaustedJobs(t *testing.T) {
	m := NewManager(nil)
	j := newTestJob(t, 1)
	id := m.Add(j)

	// Not done yet: Finish is a no-op.
	m.Finish(id)
	assert.Equal(t, 1, m.Len())

	_, _, err := m.Prepare(id)
	require.NoError(t, err)
	m.Finish(id)
	assert.Zero(t, m.Len())
}

func TestRemaining(t *testing.T) {
	m := NewManager(nil)
	j := newTestJob(t, 2)
	id := m.Add(j)
	assert.Equal(t, 2, j.Remaining())

	_, _, err := m.Prepare(id)
	require.NoError(t, err)
	assert.Equal(t, 1, j.Remaining())
	assert.False(t, j.Done())
}
