// Package policyfile loads the loan policy from a YAML file and keeps it
// current while the file changes.
package policyfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lendr/internal/loan"
	pkgconfig "github.com/starford/lendr/pkg/config"
)

// debounce is how long the file must stay quiet before it is re-read.
const debounce = 200 * time.Millisecond

// Load reads and validates a policy file. Fields the file omits keep the
// values of loan.DefaultPolicy.
func Load(path string) (loan.Policy, error) {
	p := loan.DefaultPolicy()
	if err := pkgconfig.Load(path, &p); err != nil {
		return loan.Policy{}, fmt.Errorf("policy: %w", err)
	}
	return p, nil
}

// Holder publishes the policy in force. Readers get a copy; a reload swaps
// the whole value.
type Holder struct {
	p atomic.Pointer[loan.Policy]
}

// NewHolder returns a Holder serving initial.
func NewHolder(initial loan.Policy) *Holder {
	h := &Holder{}
	h.Store(initial)
	return h
}

// Current returns the policy in force.
func (h *Holder) Current() loan.Policy {
	return *h.p.Load()
}

// Store replaces the policy in force.
func (h *Holder) Store(p loan.Policy) {
	h.p.Store(&p)
}

// ChangeCallback is called after a reload replaced the policy.
type ChangeCallback func(loan.Policy)

// Watch re-reads path whenever it changes and stores the result in h until
// ctx is cancelled. The parent directory is watched so that editors which
// replace the file by rename are followed. A file that fails to load is
// logged and the previous policy stays in force.
func Watch(ctx context.Context, path string, h *Holder, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	logger.Info("policy watcher: started", slog.String("path", path))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(debounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("policy watcher: stopped")
			return nil

		case <-reloadCh:
			reload(path, h, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("policy watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reload(path string, h *Holder, logger *slog.Logger, cb ChangeCallback) {
	p, err := Load(path)
	if err != nil {
		logger.Warn("policy watcher: keeping previous policy", slog.String("error", err.Error()))
		return
	}
	if p == h.Current() {
		return
	}
	h.Store(p)
	logger.Info("policy watcher: policy reloaded",
		slog.Int("max_duration_days", p.MaxDurationDays),
		slog.Int("min_duration_days", p.MinDurationDays),
		slog.Bool("allow_backdated_due_date", p.AllowBackdatedDueDate))
	if cb != nil {
		cb(p)
	}
}
