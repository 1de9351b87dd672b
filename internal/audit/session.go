// Package audit runs the USB audit loop: wait for an insertion, inspect the
// device, watch the network for a while, and record what looks wrong.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hara602/usbAudit/internal/alertstore"
	"github.com/Hara602/usbAudit/internal/config"
	"github.com/Hara602/usbAudit/internal/correlate"
	"github.com/Hara602/usbAudit/internal/model"
	"github.com/Hara602/usbAudit/internal/probe"
	"github.com/Hara602/usbAudit/internal/rules"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CycleResult summarises one handled USB event.
type CycleResult struct {
	Alerts         []model.Alert // everything the cycle produced, before dedup
	Added          int           // alerts that were new to the store
	NewConnections int           // records in the snapshot diff
	Attributed     int           // new connections with a known owning process
	Skipped        int           // connection records that did not parse
	Degraded       []string      // advanced checks whose probe failed
}

// Session owns the baseline connection set and the alert store for the
// lifetime of the process.
type Session struct {
	cfg        config.Config
	probe      probe.SystemProbe
	store      alertstore.Store
	alertLog   *AlertLog
	attributor *correlate.Attributor
	advanced   *rules.AdvancedChecks
	log        *zap.Logger

	StartedAt    time.Time
	LogPath      string
	AlertLogPath string

	// snapMu orders snapshots: a higher seq is always a later snapshot.
	snapMu  sync.Mutex
	snapSeq uint64

	// mu guards baseline and the store/alert-log pair across workers.
	mu          sync.Mutex
	baseline    model.ConnectionSnapshot
	baselineSeq uint64

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New(cfg config.Config, p probe.SystemProbe, store alertstore.Store, log *zap.Logger, startedAt time.Time) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	logPath, alertPath := SessionPaths(cfg.LogDir, startedAt)

	s := &Session{
		cfg:          cfg,
		probe:        p,
		store:        store,
		alertLog:     NewAlertLog(alertPath),
		attributor:   correlate.NewAttributor(p, log),
		log:          log,
		StartedAt:    startedAt,
		LogPath:      logPath,
		AlertLogPath: alertPath,
		baseline:     make(model.ConnectionSnapshot),
		now:          time.Now,
		sleep:        sleepCtx,
	}

	if cfg.Advanced {
		if aux, ok := p.(probe.AuxProbe); ok {
			s.advanced = rules.NewAdvancedChecks(aux, log)
			if cfg.AutostartWindow > 0 {
				s.advanced.AutostartWindow = cfg.AutostartWindow
			}
			if cfg.TerminalWindow > 0 {
				s.advanced.TerminalWindow = cfg.TerminalWindow
			}
		} else {
			log.Warn("advanced checks requested but the probe cannot run them")
		}
	}
	return s
}

// Start captures the initial baseline.
func (s *Session) Start(ctx context.Context) error {
	s.log.Info("USB Audit Mode Started")
	s.log.Info("Monitoring for USB plug-ins, network activity, and suspicious behaviors...")

	base, seq, err := s.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("baseline snapshot: %w", err)
	}

	s.mu.Lock()
	s.advanceBaseline(base, seq)
	s.mu.Unlock()
	s.log.Debug("baseline captured", zap.Int("connections", base.Len()))
	return nil
}

// Run detects events on its own ticker and hands them to the worker pool
// through a bounded queue, so an insertion during another event's
// observation window is queued instead of missed. It returns nil when ctx
// ends and an *IOError if the alert log cannot be written.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	queue := make(chan string, s.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		s.detect(gctx, queue)
		return nil
	})
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			return s.work(gctx, queue)
		})
	}
	return g.Wait()
}

func (s *Session) detect(ctx context.Context, queue chan<- string) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		event, err := s.probe.PollUSBEvent(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("usb event poll failed", zap.Error(err))
			}
			continue
		}
		if event == "" {
			continue
		}

		select {
		case queue <- event:
		default:
			// a cycle is already pending and will see this device's
			// network effects too
			s.log.Warn("event queue full, folding USB event into a pending cycle")
		}
	}
}

func (s *Session) work(ctx context.Context, queue <-chan string) error {
	for event := range queue {
		_, err := s.HandleEvent(ctx, event)
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			s.log.Error("alerts could not be persisted, stopping", zap.Error(err))
			return err
		}
	}
	return nil
}

// HandleEvent runs one full correlation cycle for a detected USB event. A
// probe failure aborts the cycle without touching the baseline or the
// store; so does cancellation at any point before the alerts are persisted.
func (s *Session) HandleEvent(ctx context.Context, event string) (CycleResult, error) {
	var res CycleResult

	s.log.Info("USB device connected")
	s.log.Info("USB event detected, logging details...")
	s.log.Debug(event)

	dump, err := s.probe.DumpDeviceDescriptors(ctx)
	if err != nil {
		s.log.Warn("cycle aborted: device descriptors unavailable", zap.Error(err))
		return res, err
	}
	s.log.Info("USB Device Snapshot:")
	s.log.Debug(dump)

	res.Alerts = rules.EvaluateDescriptors(dump, s.now())
	for _, a := range res.Alerts {
		s.log.Warn(a.Message)
	}

	s.log.Info(fmt.Sprintf("Waiting %s to observe network activity...", s.cfg.ObservationWindow))
	if err := s.sleep(ctx, s.cfg.ObservationWindow); err != nil {
		s.log.Warn("cycle interrupted during observation window", zap.Error(err))
		return res, err
	}

	next, seq, err := s.snapshot(ctx)
	if err != nil {
		s.log.Warn("cycle aborted: connection snapshot failed", zap.Error(err))
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := correlate.Diff(s.baseline, next)
	res.NewConnections = fresh.Len()
	if fresh.Len() > 0 {
		s.log.Info("New network connections detected:")
		for _, r := range fresh.Records() {
			s.log.Debug(string(r))
		}
		s.log.Info("Resolving responsible processes for new connections:")
		attr := s.attributor.Attribute(ctx, fresh)
		res.Alerts = append(res.Alerts, attr.Alerts...)
		res.Skipped = attr.Skipped
		for _, a := range attr.Attributions {
			if a.Process != "" {
				res.Attributed++
			}
		}
		if attr.Skipped > 0 {
			s.log.Info(fmt.Sprintf("%d malformed connection records skipped", attr.Skipped))
		}
	} else {
		s.log.Info("No new network connections detected.")
	}

	if s.advanced != nil {
		rep := s.advanced.Run(ctx)
		res.Alerts = append(res.Alerts, rep.Alerts...)
		res.Degraded = rep.Degraded
		if len(rep.Degraded) > 0 {
			s.log.Warn("advanced checks incomplete", zap.Strings("degraded", rep.Degraded))
		}
	}

	// attribution and the advanced checks stop early on cancel; partial
	// results are not persisted
	if err := ctx.Err(); err != nil {
		s.log.Warn("cycle interrupted before persisting", zap.Error(err))
		return res, err
	}

	if err := s.persist(&res); err != nil {
		return res, err
	}

	s.advanceBaseline(next, seq)
	s.log.Info("Audit continues...")
	return res, nil
}

// snapshot captures the connection table and numbers it.
func (s *Session) snapshot(ctx context.Context) (model.ConnectionSnapshot, uint64, error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	lines, err := s.probe.SnapshotConnections(ctx)
	if err != nil {
		return nil, 0, err
	}
	s.snapSeq++
	return model.NewSnapshot(lines), s.snapSeq, nil
}

// persist merges the cycle's alerts and rewrites the alert log. A store
// failure after some Adds leaves those alerts stored; the next cycle's
// Adds dedup against them. Callers hold s.mu.
func (s *Session) persist(res *CycleResult) error {
	for _, a := range res.Alerts {
		var added bool
		err := retryOnce(func() error {
			var err error
			added, err = s.store.Add(a)
			return err
		})
		if err != nil {
			return &IOError{Path: "alert store", Err: err}
		}
		if added {
			res.Added++
		}
	}

	var all []model.Alert
	err := retryOnce(func() error {
		var err error
		all, err = s.store.All()
		return err
	})
	if err != nil {
		return &IOError{Path: "alert store", Err: err}
	}
	return s.alertLog.Write(all)
}

// advanceBaseline installs next unless a later snapshot is already the
// baseline. Callers hold s.mu.
func (s *Session) advanceBaseline(next model.ConnectionSnapshot, seq uint64) bool {
	if seq <= s.baselineSeq {
		s.log.Debug("newer baseline already in place", zap.Uint64("seq", seq), zap.Uint64("baseline", s.baselineSeq))
		return false
	}
	s.baseline = next
	s.baselineSeq = seq
	return true
}

// Baseline returns a copy of the current baseline snapshot.
func (s *Session) Baseline() model.ConnectionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.Clone()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
