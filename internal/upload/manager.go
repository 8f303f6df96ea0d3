// Package upload runs the upload pipeline: validate, generate insights,
// build the record, persist it.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streamshort/backend/internal/insight"
	"github.com/streamshort/backend/internal/models"
	"github.com/streamshort/backend/internal/preview"
)

// State is the pipeline state of a job.
type State string

const (
	StateIdle             State = "idle"
	StateValidating       State = "validating"
	StateAwaitingInsights State = "awaiting_insights"
	StateFinalizing       State = "finalizing"
)

// Progress checkpoints. These are fixed milestones, not byte counts.
const (
	ProgressAccepted  = 10
	ProgressRequested = 30
	ProgressResolved  = 60
	ProgressComplete  = 100
)

const (
	stageAnalyzing  = "Analyzing video data..."
	stageGenerating = "Generating metadata with Gemini..."
	stageFinalizing = "Finalizing short link..."

	slugAttempts     = 5
	slugSuffixLength = 4
)

var (
	ErrNoFile               = errors.New("no file selected")
	ErrInvalidFileType      = errors.New("please upload a valid video file")
	ErrPipeline             = errors.New("something went wrong during the AI analysis")
	ErrConfirmationRequired = errors.New("clear all requires confirmation")
	ErrSlugExhausted        = errors.New("no free slug")
)

// Job is a snapshot of one pipeline run.
type Job struct {
	ID          string              `json:"id"`
	FileName    string              `json:"fileName"`
	State       State               `json:"state"`
	Progress    int                 `json:"progress"`
	Stage       string              `json:"stage"`
	Record      *models.VideoRecord `json:"record,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

// Done reports whether the run has finished, successfully or not.
func (j Job) Done() bool {
	return j.CompletedAt != nil
}

// Observer is notified with a snapshot on every job change.
type Observer func(Job)

// History is what the pipeline needs from the history store.
type History interface {
	PrependUnique(build func(taken func(slug string) bool) (models.VideoRecord, error)) (models.VideoRecord, error)
	Delete(id string) (models.VideoRecord, bool, error)
	Clear() ([]models.VideoRecord, error)
}

// Previews creates and releases preview references.
type Previews interface {
	Create(name string, r io.Reader) (*preview.Reference, error)
	Release(ref string) bool
}

// Options tunes the Manager.
type Options struct {
	ShortLinkBase string
	FinalizeDelay time.Duration
	Now           func() time.Time
}

// Manager runs pipeline jobs and owns record deletion.
type Manager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	generator insight.Generator
	history   History
	previews  Previews
	opts      Options
	log       *logrus.Entry
}

// NewManager creates a new upload pipeline manager.
func NewManager(generator insight.Generator, history History, previews Previews, opts Options, log *logrus.Entry) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.ShortLinkBase = strings.TrimRight(opts.ShortLinkBase, "/")

	return &Manager{
		jobs:      make(map[string]*Job),
		generator: generator,
		history:   history,
		previews:  previews,
		opts:      opts,
		log:       log,
	}
}

// ShortLink returns the share link for slug.
func (m *Manager) ShortLink(slug string) string {
	return m.opts.ShortLinkBase + "/" + slug
}

// Run executes one pipeline run for src and returns the stored record.
// jobID may be empty; a caller-chosen id lets clients watch the job while
// the call is in flight. obs may be nil.
func (m *Manager) Run(ctx context.Context, src models.FileSource, jobID string, obs Observer) (*models.VideoRecord, error) {
	return m.run(ctx, m.newJob(jobID, src.Name), src, obs)
}

// Start runs the pipeline for src on a new goroutine and returns the job
// immediately. done, if set, is called once the pipeline no longer needs
// src.Body.
func (m *Manager) Start(src models.FileSource, done func()) Job {
	job := m.newJob("", src.Name)
	snap := snapshot(job)

	go func() {
		if done != nil {
			defer done()
		}
		if _, err := m.run(context.Background(), job, src, nil); err != nil {
			m.log.WithError(err).WithField("job", snap.ID).Debug("Background upload finished with error")
		}
	}()

	return snap
}

func (m *Manager) run(ctx context.Context, job *Job, src models.FileSource, obs Observer) (*models.VideoRecord, error) {
	log := m.log.WithFields(logrus.Fields{"job": job.ID, "file": src.Name})

	m.update(job, StateValidating, ProgressAccepted, stageAnalyzing, obs)

	if src.Body == nil {
		m.fail(job, ErrNoFile, obs)
		return nil, ErrNoFile
	}
	if !strings.HasPrefix(src.MimeType, "video/") {
		log.WithField("type", src.MimeType).Info("Rejected upload with non-video type")
		m.fail(job, ErrInvalidFileType, obs)
		return nil, ErrInvalidFileType
	}

	m.update(job, StateAwaitingInsights, ProgressRequested, stageAnalyzing, obs)

	insights := m.generator.Generate(ctx, src.Name, src.Size)
	if insights.Synthetic {
		log.WithError(insights.Cause).Info("Using synthetic insights")
	}

	m.update(job, StateFinalizing, ProgressResolved, stageGenerating, obs)

	rec, err := m.finalize(src, insights.InsightResult)
	if err != nil {
		log.WithError(err).Error("Upload failed")
		m.fail(job, ErrPipeline, obs)
		return nil, fmt.Errorf("%w: %v", ErrPipeline, err)
	}

	m.complete(job, rec, obs)
	log.WithFields(logrus.Fields{"id": rec.ID, "slug": rec.Slug}).Info("Upload complete")

	return rec, nil
}

// finalize creates the preview, builds the record and persists it.
// The preview is released if the record cannot be saved.
func (m *Manager) finalize(src models.FileSource, res models.InsightResult) (*models.VideoRecord, error) {
	ref, err := m.previews.Create(src.Name, src.Body)
	if err != nil {
		return nil, fmt.Errorf("creating preview: %w", err)
	}

	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}

	rec, err := m.history.PrependUnique(func(taken func(string) bool) (models.VideoRecord, error) {
		slug, err := m.uniqueSlug(res.Slug, taken)
		if err != nil {
			return models.VideoRecord{}, err
		}
		return models.VideoRecord{
			ID:             uuid.New().String(),
			Name:           src.Name,
			Size:           src.Size,
			MimeType:       src.MimeType,
			LocalReference: ref.URL,
			ShortLink:      m.ShortLink(slug),
			Slug:           slug,
			AITitle:        res.Title,
			AIDescription:  res.Description,
			Tags:           tags,
			CreatedAt:      m.opts.Now().UnixMilli(),
		}, nil
	})
	if err != nil {
		m.previews.Release(ref.URL)
		return nil, fmt.Errorf("saving history: %w", err)
	}
	return &rec, nil
}

// uniqueSlug appends a random suffix while slug collides with a stored record.
// It gives up with ErrSlugExhausted after slugAttempts suffixes.
func (m *Manager) uniqueSlug(slug string, taken func(string) bool) (string, error) {
	if !taken(slug) {
		return slug, nil
	}
	for i := 0; i < slugAttempts; i++ {
		candidate := slug + "-" + insight.RandomToken(slugSuffixLength)
		if !taken(candidate) {
			m.log.WithFields(logrus.Fields{"slug": slug, "resolved": candidate}).Info("Slug collision resolved")
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s taken after %d attempts", ErrSlugExhausted, slug, slugAttempts)
}

// Delete removes a record and releases its preview. Absent ids are a no-op.
func (m *Manager) Delete(id string) error {
	removed, ok, err := m.history.Delete(id)
	if err != nil {
		return err
	}
	if ok {
		m.previews.Release(removed.LocalReference)
	}
	return nil
}

// Clear removes every record once the user has confirmed.
func (m *Manager) Clear(confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	removed, err := m.history.Clear()
	if err != nil {
		return err
	}
	for _, rec := range removed {
		m.previews.Release(rec.LocalReference)
	}
	return nil
}

// GetJob retrieves a job snapshot by ID.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return snapshot(job), true
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.State == StateIdle && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

func (m *Manager) newJob(id, fileName string) *Job {
	if id == "" {
		id = uuid.New().String()
	}
	job := &Job{
		ID:        id,
		FileName:  fileName,
		State:     StateIdle,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

func (m *Manager) update(job *Job, state State, progress int, stage string, obs Observer) {
	m.mu.Lock()
	job.State = state
	job.Progress = progress
	job.Stage = stage
	snap := snapshot(job)
	m.mu.Unlock()

	notify(obs, snap)
}

// fail returns the job straight to idle.
func (m *Manager) fail(job *Job, err error, obs Observer) {
	m.mu.Lock()
	job.State = StateIdle
	job.Progress = 0
	job.Stage = ""
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	snap := snapshot(job)
	m.mu.Unlock()

	notify(obs, snap)
}

// complete shows 100% for FinalizeDelay, then resets the job to idle.
// The record is already saved at this point.
func (m *Manager) complete(job *Job, rec *models.VideoRecord, obs Observer) {
	m.mu.Lock()
	job.Progress = ProgressComplete
	job.Stage = stageFinalizing
	job.Record = rec
	now := time.Now()
	job.CompletedAt = &now
	snap := snapshot(job)
	m.mu.Unlock()

	notify(obs, snap)

	time.AfterFunc(m.opts.FinalizeDelay, func() {
		m.mu.Lock()
		job.State = StateIdle
		job.Progress = 0
		job.Stage = ""
		snap := snapshot(job)
		m.mu.Unlock()

		notify(obs, snap)
	})
}

func snapshot(job *Job) Job {
	out := *job
	if job.Record != nil {
		rec := *job.Record
		out.Record = &rec
	}
	return out
}

func notify(obs Observer, job Job) {
	if obs != nil {
		obs(job)
	}
}
