package spool

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpoolLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewFileSpooler(fs, "/spool", 0)
	require.NoError(t, err)
	ctx := context.Background()

	job, err := s.Open(ctx, "laser", "report", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), job.Number)

	_, err = job.File().WriteAt([]byte("%!PS"), 0)
	require.NoError(t, err)

	q, err := s.Queue(ctx, "laser")
	require.NoError(t, err)
	require.Len(t, q, 1)
	assert.Equal(t, StatusSpooling, q[0].Status)
	assert.Equal(t, int64(4), q[0].Size)

	require.NoError(t, s.Submit(ctx, job))
	assert.Equal(t, StatusQueued, job.Status)
	assert.ErrorIs(t, s.Submit(ctx, job), ErrJobNotFound)

	data, err := afero.ReadFile(fs, "/spool/"+job.ID.String()+".prn")
	require.NoError(t, err)
	assert.Equal(t, "%!PS", string(data))

	require.NoError(t, s.Complete(ctx, job.ID))
	q, err = s.Queue(ctx, "laser")
	require.NoError(t, err)
	assert.Empty(t, q)
}

func TestSpoolCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewFileSpooler(fs, "/spool", 0)
	require.NoError(t, err)
	ctx := context.Background()

	job, err := s.Open(ctx, "laser", "draft", "bob")
	require.NoError(t, err)
	require.NoError(t, s.Cancel(ctx, job))
	assert.Equal(t, StatusCancelled, job.Status)

	exists, err := afero.Exists(fs, "/spool/"+job.ID.String()+".prn")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSpoolQueueLimit(t *testing.T) {
	s, err := NewFileSpooler(afero.NewMemMapFs(), "/spool", 1)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Open(ctx, "laser", "a", "u")
	require.NoError(t, err)
	_, err = s.Open(ctx, "laser", "b", "u")
	assert.ErrorIs(t, err, ErrQueueFull)
	_, err = s.Open(ctx, "inkjet", "c", "u")
	assert.NoError(t, err)
}
