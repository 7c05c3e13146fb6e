// Package spool is the print-spooling bridge. Print jobs are written to
// spool files and handed to the queue when the client closes them.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/marmos91/dittosmb/internal/logger"
)

var (
	// ErrJobNotFound is returned for an unknown or finished job.
	ErrJobNotFound = errors.New("spool: job not found")

	// ErrQueueFull is returned when the queue limit is reached.
	ErrQueueFull = errors.New("spool: print queue full")
)

// Status is the state of a job.
type Status uint8

const (
	StatusSpooling Status = iota + 1
	StatusQueued
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSpooling:
		return "spooling"
	case StatusQueued:
		return "queued"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Job is one print job.
type Job struct {
	ID        uuid.UUID
	Number    uint16
	Share     string
	Title     string
	Owner     string
	Submitted time.Time
	Status    Status
	Size      int64

	file afero.File
}

// File returns the spool file being written. Only valid while spooling.
func (j *Job) File() afero.File { return j.file }

// Spooler manages print jobs.
type Spooler interface {
	// Open starts a job and returns it with its spool file open for writing.
	Open(ctx context.Context, share, title, owner string) (*Job, error)

	// Submit closes the spool file and queues the job.
	Submit(ctx context.Context, job *Job) error

	// Cancel discards a job that is still spooling.
	Cancel(ctx context.Context, job *Job) error

	// Queue lists the queued and spooling jobs of share, oldest first.
	Queue(ctx context.Context, share string) ([]Job, error)
}

// FileSpooler keeps spool files in a directory of an afero filesystem.
type FileSpooler struct {
	fs    afero.Fs
	dir   string
	limit int

	mu   sync.Mutex
	next uint16
	jobs map[uuid.UUID]*Job
}

var _ Spooler = (*FileSpooler)(nil)

// NewFileSpooler creates a spooler writing below dir. limit bounds the
// number of jobs per share; 0 means unlimited.
func NewFileSpooler(fs afero.Fs, dir string, limit int) (*FileSpooler, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	return &FileSpooler{
		fs:    fs,
		dir:   dir,
		limit: limit,
		jobs:  make(map[uuid.UUID]*Job),
	}, nil
}

func (s *FileSpooler) jobPath(j *Job) string {
	return path.Join(s.dir, j.ID.String()+".prn")
}

func (s *FileSpooler) Open(ctx context.Context, share, title, owner string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 {
		n := 0
		for _, j := range s.jobs {
			if j.Share == share {
				n++
			}
		}
		if n >= s.limit {
			return nil, ErrQueueFull
		}
	}

	s.next++
	if s.next == 0 {
		s.next = 1
	}
	job := &Job{
		ID:        uuid.New(),
		Number:    s.next,
		Share:     share,
		Title:     title,
		Owner:     owner,
		Submitted: time.Now(),
		Status:    StatusSpooling,
	}

	f, err := s.fs.OpenFile(s.jobPath(job), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	job.file = f
	s.jobs[job.ID] = job

	logger.DebugCtx(ctx, "spool: job opened", logger.KeyShare, share, "job", job.ID, "title", title)
	return job, nil
}

func (s *FileSpooler) Submit(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[job.ID]
	if !ok || j.Status != StatusSpooling {
		return ErrJobNotFound
	}
	info, err := j.file.Stat()
	if err == nil {
		j.Size = info.Size()
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close spool file: %w", err)
	}
	j.file = nil
	j.Status = StatusQueued
	job.Size, job.Status = j.Size, j.Status

	logger.InfoCtx(ctx, "spool: job queued", logger.KeyShare, j.Share, "job", j.ID, logger.KeySize, j.Size)
	return nil
}

func (s *FileSpooler) Cancel(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	if j.file != nil {
		_ = j.file.Close()
		j.file = nil
	}
	delete(s.jobs, j.ID)
	j.Status = StatusCancelled
	job.Status = StatusCancelled

	if err := s.fs.Remove(s.jobPath(j)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnCtx(ctx, "spool: cannot remove spool file", "job", j.ID, logger.KeyError, err)
	}
	return nil
}

// Complete removes a queued job, as the printer does once it has printed.
func (s *FileSpooler) Complete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	if err := s.fs.Remove(s.jobPath(j)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	logger.DebugCtx(ctx, "spool: job completed", "job", id)
	return nil
}

func (s *FileSpooler) Queue(_ context.Context, share string) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, j := range s.jobs {
		if j.Share != share {
			continue
		}
		c := *j
		c.file = nil
		if c.Status == StatusSpooling && j.file != nil {
			if info, err := j.file.Stat(); err == nil {
				c.Size = info.Size()
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Submitted.Equal(out[b].Submitted) {
			return out[a].Number < out[b].Number
		}
		return out[a].Submitted.Before(out[b].Submitted)
	})
	return out, nil
}
