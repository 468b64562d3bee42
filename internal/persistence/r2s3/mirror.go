package r2s3

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type MirrorOptions struct {
	// BaseDir is stripped from local paths to form object keys.
	BaseDir string
	Prefix  string
	Workers int
	Queue   int
	// Attempts per file, with quadratic backoff between them.
	Attempts int
	Backoff  time.Duration
}

type Stats struct {
	Queued   uint64 `json:"queued"`
	Dropped  uint64 `json:"dropped"`
	Uploaded uint64 `json:"uploaded"`
	Failed   uint64 `json:"failed"`
	Depth    int    `json:"depth"`
}

// Mirror uploads files handed to Enqueue on background workers. Enqueue
// never blocks the caller; a full queue drops the file.
type Mirror struct {
	up   Uploader
	opts MirrorOptions
	log  zerolog.Logger

	jobs chan string
	wg   sync.WaitGroup
	once sync.Once

	queued   atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
}

func NewMirror(up Uploader, opts MirrorOptions, log zerolog.Logger) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	opts.Prefix = strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/")
	m := &Mirror{up: up, opts: opts, log: log, jobs: make(chan string, opts.Queue)}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.uploadOne(p)
			}
		}()
	}
	return m
}

func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	select {
	case m.jobs <- localPath:
		m.queued.Add(1)
	default:
		n := m.dropped.Add(1)
		m.log.Warn().Str("file", localPath).Uint64("dropped_total", n).Msg("mirror queue full")
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() { close(m.jobs) })
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Queued:   m.queued.Load(),
		Dropped:  m.dropped.Load(),
		Uploaded: m.uploaded.Load(),
		Failed:   m.failed.Load(),
		Depth:    len(m.jobs),
	}
}

func (m *Mirror) uploadOne(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.failed.Add(1)
		m.log.Warn().Err(err).Str("file", localPath).Msg("mirror skip")
		return
	}
	var lastErr error
	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.up.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			m.uploaded.Add(1)
			m.log.Info().Str("key", key).Msg("journal mirrored")
			return
		}
		if attempt < m.opts.Attempts {
			time.Sleep(time.Duration(attempt*attempt) * m.opts.Backoff)
		}
	}
	m.failed.Add(1)
	m.log.Error().Err(lastErr).Str("key", key).Int("attempts", m.opts.Attempts).Msg("mirror upload failed")
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	absBase, err := filepath.Abs(m.opts.BaseDir)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside %s", absLocal, absBase)
	}
	if m.opts.Prefix != "" {
		rel = path.Join(m.opts.Prefix, rel)
	}
	return rel, nil
}
