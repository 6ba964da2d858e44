package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/flexblock/flex"
	"go.viam.com/flexblock/logging"
)

// InitialPreset is applied when the loop starts and whenever the presets file changes.
const InitialPreset = "initial"

// Presets are named operator inputs.
type Presets map[string]flex.Input

// ReadPresets reads a presets file.
func ReadPresets(path string) (Presets, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read presets file %q", path)
	}
	var presets Presets
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&presets); err != nil {
		return nil, errors.Wrapf(err, "cannot parse presets file %q", path)
	}
	return presets, nil
}

// Input returns the named preset resized to the given number of ropes.
func (p Presets) Input(name string, motors int) (flex.Input, bool) {
	in, ok := p[name]
	if !ok {
		return flex.Input{}, false
	}
	return in.Resize(motors), true
}

// reloadDelay collapses the burst of events a single save produces into one reload.
const reloadDelay = 50 * time.Millisecond

// A Watcher rereads a presets file whenever it is written and hands the result to a callback.
type Watcher struct {
	path     string
	logger   logging.Logger
	watcher  *fsnotify.Watcher
	onChange func(Presets)
	debounce func(func())
	workers  *goutils.StoppableWorkers

	// closeMu also serializes reloads with Close so onChange is never called after Close returns.
	closeMu sync.Mutex
	closed  bool
}

// NewWatcher starts watching path. The directory is watched rather than the file so that editors
// replacing the file are picked up.
func NewWatcher(logger logging.Logger, path string, onChange func(Presets)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		return nil, errors.Wrapf(multierr.Combine(err, fsWatcher.Close()), "cannot watch %q", path)
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		logger:   logger,
		watcher:  fsWatcher,
		onChange: onChange,
		debounce: debounce.New(reloadDelay),
	}
	w.workers = goutils.NewBackgroundStoppableWorkers(w.run)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.debounce(w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("presets watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return
	}
	presets, err := ReadPresets(w.path)
	if err != nil {
		w.logger.Warnw("cannot reload presets", "path", w.path, "error", err)
		return
	}
	w.logger.Infow("presets reloaded", "path", w.path, "count", len(presets))
	w.onChange(presets)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.workers.Stop()
	return w.watcher.Close()
}
