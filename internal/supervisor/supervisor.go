// Package supervisor implements the Supervisor (spec §4.H): process
// lifecycle for scraper worker children, liveness polling, and bounded
// auto-restart. Grounded on the teacher's cmd/crawler/main.go signal
// handling (SIGINT/SIGTERM → context cancellation → graceful shutdown),
// generalized here from "one crawler process, signals handled by its own
// main" to "one supervisor process, owning many worker children, each
// signaled independently" per spec §5's one-process-per-tenant model.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/onnwee/reddit-fleet/internal/apierr"
	"github.com/onnwee/reddit-fleet/internal/logger"
	"github.com/onnwee/reddit-fleet/internal/metrics"
	"github.com/onnwee/reddit-fleet/internal/store"
)

// LogPublisher fans out a worker child's stdout/stderr lines to any
// operators watching that scraper's log tail (§4.H, supplemented by the
// websocket log stream in internal/api/handlers).
type LogPublisher interface {
	Publish(scraperID string, line []byte)
}

// ProcessStore is the store surface the Supervisor needs; satisfied by
// *internal/store.Store.
type ProcessStore interface {
	LoadScraper(ctx context.Context, id string) (store.ScraperRecord, error)
	SetStatus(ctx context.Context, scraperID string, status store.ScraperStatus, lastError string) error
	SetContainerInfo(ctx context.Context, scraperID, containerID, containerName string) error
	IncrementRestartCount(ctx context.Context, scraperID string) error
	FleetPaused(ctx context.Context) (bool, error)
}

// child tracks one running worker process.
type child struct {
	scraperID string
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	exitErr   error
}

// Supervisor owns the worker binary's child processes, one per running
// scraper (spec §4.H). It is the sole writer of container_id/container_name
// (spec §4.D invariant).
type Supervisor struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	children map[string]*child
	restarts map[string][]time.Time

	store   ProcessStore
	binPath string
	logs    LogPublisher

	pollInterval   time.Duration
	shutdownGrace  time.Duration
	restartWindow  time.Duration
	restartCeiling int

	lastPoll time.Time
}

// New builds a Supervisor. binPath is the path to the cmd/worker binary
// spawned once per tenant.
func New(st ProcessStore, binPath string, pollInterval, shutdownGrace, restartWindow time.Duration, restartCeiling int) *Supervisor {
	return &Supervisor{
		children:       make(map[string]*child),
		restarts:       make(map[string][]time.Time),
		store:          st,
		binPath:        binPath,
		pollInterval:   pollInterval,
		shutdownGrace:  shutdownGrace,
		restartWindow:  restartWindow,
		restartCeiling: restartCeiling,
		lastPoll:       time.Now(),
	}
}

// WithLogPublisher attaches a LogPublisher that subsequently spawned
// children's stdout/stderr are tailed into. Optional — a Supervisor built
// without one simply discards child output.
func (s *Supervisor) WithLogPublisher(logs LogPublisher) *Supervisor {
	s.logs = logs
	return s
}

// Healthy reports whether the Run loop's poll tick has fired recently
// (within 3 poll intervals); used by GET /health to detect a stalled
// supervisor goroutine (spec's SUPPLEMENTED FEATURES #2).
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastPoll) < 3*s.pollInterval
}

// Start loads the scraper record and spawns its worker process.
func (s *Supervisor) Start(ctx context.Context, scraperID string) error {
	rec, err := s.store.LoadScraper(ctx, scraperID)
	if err != nil {
		return apierr.ScraperNotFound(scraperID)
	}
	return s.spawn(ctx, rec)
}

// Stop sends SIGTERM, waits up to shutdownGrace, then SIGKILLs (spec §4.H:
// "graceful termination with a grace period before force-kill").
func (s *Supervisor) Stop(ctx context.Context, scraperID string) error {
	s.mu.Lock()
	c, ok := s.children[scraperID]
	s.mu.Unlock()
	if !ok {
		return s.store.SetStatus(ctx, scraperID, store.StatusStopped, "")
	}

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.WarnContext(ctx, "supervisor: SIGTERM failed, killing", "scraper_id", scraperID, "error", err)
		_ = c.cmd.Process.Kill()
	}

	select {
	case <-c.done:
	case <-time.After(s.shutdownGrace):
		logger.WarnContext(ctx, "supervisor: shutdown grace exceeded, killing", "scraper_id", scraperID)
		_ = c.cmd.Process.Kill()
		<-c.done
	}

	s.mu.Lock()
	delete(s.children, scraperID)
	s.mu.Unlock()

	return s.store.SetStatus(ctx, scraperID, store.StatusStopped, "")
}

// Restart stops then respawns a scraper, incrementing its restart counter.
func (s *Supervisor) Restart(ctx context.Context, scraperID string) error {
	if err := s.Stop(ctx, scraperID); err != nil {
		return err
	}
	if err := s.store.IncrementRestartCount(ctx, scraperID); err != nil {
		logger.ErrorContext(ctx, "supervisor: failed to increment restart count", "scraper_id", scraperID, "error", err)
	}
	return s.Start(ctx, scraperID)
}

func (s *Supervisor) spawn(ctx context.Context, rec store.ScraperRecord) error {
	if paused, err := s.store.FleetPaused(ctx); err != nil {
		logger.WarnContext(ctx, "supervisor: failed to check fleet pause toggle, proceeding", "error", err)
	} else if paused {
		logger.InfoContext(ctx, "supervisor: fleet paused, refusing to start worker", "scraper_id", rec.ID)
		return apierr.ScraperStartFailed("fleet is paused")
	}

	s.mu.Lock()
	if _, exists := s.children[rec.ID]; exists {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	cmd := exec.Command(s.binPath)
	cmd.Env = append(os.Environ(), "SCRAPER_ID="+rec.ID, "WORKER_ROLE="+rec.ScraperType)

	var stdout, stderr io.ReadCloser
	if s.logs != nil {
		var err error
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			logger.ErrorContext(ctx, "supervisor: failed to attach stdout pipe", "scraper_id", rec.ID, "error", err)
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			logger.ErrorContext(ctx, "supervisor: failed to attach stderr pipe", "scraper_id", rec.ID, "error", err)
		}
	}

	if err := cmd.Start(); err != nil {
		_ = s.store.SetStatus(ctx, rec.ID, store.StatusFailed, err.Error())
		return apierr.ScraperStartFailed(err.Error())
	}

	if s.logs != nil {
		if stdout != nil {
			go s.tailLines(rec.ID, stdout)
		}
		if stderr != nil {
			go s.tailLines(rec.ID, stderr)
		}
	}

	containerID := strconv.Itoa(cmd.Process.Pid)
	containerName := fmt.Sprintf("worker-%s-%s", rec.ScraperType, rec.ID)
	if err := s.store.SetContainerInfo(ctx, rec.ID, containerID, containerName); err != nil {
		logger.ErrorContext(ctx, "supervisor: failed to record container info", "scraper_id", rec.ID, "error", err)
	}
	if err := s.store.SetStatus(ctx, rec.ID, store.StatusRunning, ""); err != nil {
		logger.ErrorContext(ctx, "supervisor: failed to set running status", "scraper_id", rec.ID, "error", err)
	}
	metrics.ScraperStatus.WithLabelValues(rec.ID, string(store.StatusRunning)).Set(1)

	c := &child{scraperID: rec.ID, cmd: cmd, startedAt: time.Now(), done: make(chan struct{})}
	s.mu.Lock()
	s.children[rec.ID] = c
	s.mu.Unlock()

	go func() {
		c.exitErr = cmd.Wait()
		close(c.done)
	}()

	logger.InfoContext(ctx, "supervisor: worker started", "scraper_id", rec.ID, "pid", cmd.Process.Pid, "scraper_type", rec.ScraperType)
	return nil
}

// Run polls for unexpectedly exited children every pollInterval and either
// auto-restarts them (bounded by restartWindow/restartCeiling) or marks the
// scraper failed (spec §4.H). It blocks until ctx is canceled, at which
// point every remaining child is stopped gracefully.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.shutdownAll(context.Background())
			return
		case <-ticker.C:
			s.mu.Lock()
			s.lastPoll = time.Now()
			s.mu.Unlock()
			s.reapExited(ctx)
		}
	}
}

func (s *Supervisor) reapExited(ctx context.Context) {
	s.mu.Lock()
	var exited []*child
	for id, c := range s.children {
		select {
		case <-c.done:
			exited = append(exited, c)
			delete(s.children, id)
		default:
		}
	}
	s.mu.Unlock()

	for _, c := range exited {
		logger.ErrorContext(ctx, "supervisor: worker exited unexpectedly", "scraper_id", c.scraperID, "error", c.exitErr, "uptime", time.Since(c.startedAt))
		metrics.ScraperStatus.WithLabelValues(c.scraperID, string(store.StatusRunning)).Set(0)

		rec, err := s.store.LoadScraper(ctx, c.scraperID)
		if err != nil {
			logger.ErrorContext(ctx, "supervisor: failed to reload scraper after exit", "scraper_id", c.scraperID, "error", err)
			continue
		}

		if !rec.AutoRestart || !s.withinRestartCeiling(c.scraperID) {
			_ = s.store.SetStatus(ctx, c.scraperID, store.StatusFailed, fmt.Sprintf("exited: %v", c.exitErr))
			continue
		}

		cooldown := s.restartCooldown(c.scraperID)
		logger.WarnContext(ctx, "supervisor: scheduling auto-restart after cooldown", "scraper_id", c.scraperID, "cooldown", cooldown)
		if err := s.store.SetStatus(ctx, c.scraperID, store.StatusStarting, fmt.Sprintf("restarting after: %v", c.exitErr)); err != nil {
			logger.ErrorContext(ctx, "supervisor: failed to set starting status", "scraper_id", c.scraperID, "error", err)
		}

		s.wg.Add(1)
		go s.restartAfterCooldown(ctx, rec, cooldown)
	}
}

// restartCooldown computes a graduated backoff before a crashed scraper is
// respawned, keyed by how many times it has already restarted within the
// trailing restartWindow (spec §4.H: "wait a cooldown (backoff keyed by
// recent restart rate)" before re-spawning) — linear in the restart count,
// the same shape as a kernel-thread supervisor's per-child restart backoff.
func (s *Supervisor) restartCooldown(scraperID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.restarts[scraperID])
	return time.Duration(n+1) * time.Second
}

// restartAfterCooldown waits out the cooldown, then records the restart and
// respawns the worker. It runs in its own goroutine so one scraper's cooldown
// never stalls reapExited's liveness check for the rest of the fleet. ctx
// cancellation (shutdown) aborts the pending restart.
func (s *Supervisor) restartAfterCooldown(ctx context.Context, rec store.ScraperRecord, cooldown time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	s.recordRestart(rec.ID)
	if err := s.store.IncrementRestartCount(ctx, rec.ID); err != nil {
		logger.ErrorContext(ctx, "supervisor: failed to increment restart count", "scraper_id", rec.ID, "error", err)
	}
	metrics.ScraperRestartsTotal.WithLabelValues(rec.ID).Inc()

	if err := s.spawn(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "supervisor: auto-restart failed", "scraper_id", rec.ID, "error", err)
		_ = s.store.SetStatus(ctx, rec.ID, store.StatusFailed, err.Error())
	}
}

// withinRestartCeiling reports whether scraperID has restarted fewer than
// restartCeiling times within the trailing restartWindow (spec §4.H: bounds
// a crash-loop from restarting forever).
func (s *Supervisor) withinRestartCeiling(scraperID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.restartWindow)
	kept := s.restarts[scraperID][:0]
	for _, t := range s.restarts[scraperID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts[scraperID] = kept
	return len(kept) < s.restartCeiling
}

func (s *Supervisor) recordRestart(scraperID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts[scraperID] = append(s.restarts[scraperID], time.Now())
}

func (s *Supervisor) shutdownAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.children))
	for id := range s.children {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil {
			logger.ErrorContext(ctx, "supervisor: shutdown stop failed", "scraper_id", id, "error", err)
		}
	}
}

// tailLines scans a child's output pipe line by line, publishing each to
// the scraper's log hub until the pipe closes (process exit).
func (s *Supervisor) tailLines(scraperID string, r io.ReadCloser) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		s.logs.Publish(scraperID, scanner.Bytes())
	}
}

// Running reports whether a scraper currently has a tracked child process.
func (s *Supervisor) Running(scraperID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.children[scraperID]
	return ok
}
