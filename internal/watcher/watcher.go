// Package watcher turns transcript files dropped into an inbox directory
// into pipeline jobs.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/types"
)

// ErrUnsupportedFile is returned for files the inbox does not ingest.
var ErrUnsupportedFile = errors.New("unsupported inbox file")

// Handler processes one new inbox file.
type Handler func(ctx context.Context, path string) error

type Watcher struct {
	dir       string
	handler   Handler
	fs        *fsnotify.Watcher
	semaphore chan struct{}
	settle    time.Duration
	wg        sync.WaitGroup
	log       *logger.Logger
}

// New watches dir, running at most maxConcurrent handlers at once.
func New(dir string, handler Handler, maxConcurrent int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Watcher{
		dir:       dir,
		handler:   handler,
		fs:        fw,
		semaphore: make(chan struct{}, maxConcurrent),
		settle:    500 * time.Millisecond,
		log:       logger.Component("watcher"),
	}, nil
}

// SetSettleDelay changes how long a new file is left alone before it is read.
func (w *Watcher) SetSettleDelay(d time.Duration) { w.settle = d }

// Start blocks until ctx ends, then waits for in-flight handlers.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.WithField("dir", w.dir).WithField("max_concurrent", cap(w.semaphore)).Info("inbox watcher started")
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.log.Info("inbox watcher stopped")
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !Supported(event.Name) {
				w.log.WithField("file", event.Name).Debug("ignoring inbox file")
				continue
			}
			w.log.WithField("file", event.Name).Info("new transcript detected")
			time.Sleep(w.settle)

			select {
			case w.semaphore <- struct{}{}:
				w.wg.Add(1)
				go func(path string) {
					defer w.wg.Done()
					defer func() { <-w.semaphore }()
					if err := w.handler(ctx, path); err != nil {
						w.log.WithField("file", path).WithError(err).Error("failed to process inbox file")
					}
				}(event.Name)
			case <-ctx.Done():
				w.wg.Wait()
				return ctx.Err()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.log.WithError(err).Error("watcher error")
		}
	}
}

func (w *Watcher) Stop() error {
	return w.fs.Close()
}

// Supported reports whether path has an ingestible extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".json":
		return true
	}
	return false
}

// JobFromFile builds a queued job from an inbox file. A .json file holding
// timed records becomes a records job; anything else is read as text. The
// file itself is the job's source artifact.
func JobFromFile(path, persona string) (*types.Job, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	job := &types.Job{Persona: persona, ArtifactPath: path}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var recs []types.TimedRecord
		if err := json.Unmarshal(body, &recs); err == nil && len(recs) > 0 {
			job.SourceKind = types.SourceRecords
			job.Records = recs
			return job, nil
		}
	}
	job.SourceKind = types.SourceText
	job.Text = string(body)
	return job, nil
}
