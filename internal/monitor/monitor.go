// Package monitor samples the capture processor and writes a status file.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rtsforge/capturepoint/internal/gamethread"
	"github.com/rtsforge/capturepoint/internal/match"
	"github.com/rtsforge/capturepoint/internal/processor"
	"github.com/rtsforge/capturepoint/internal/storage"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// StatusFileName is written in StatusDir on every sample.
const StatusFileName = "status.txt"

// StatsSource is satisfied by *processor.Processor.
type StatsSource interface {
	Stats() processor.Stats
}

// PerformanceWriter receives every sample, e.g. the influx manager.
type PerformanceWriter interface {
	WritePerformance(perf core.TickPerformance) error
}

// pending is implemented by backends with a write queue.
type pending interface {
	Pending() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats        StatsSource
	Tasks        *gamethread.Tasks
	MatchContext *match.Context
	Backend      storage.Backend
	Performance  PerformanceWriter
	StatusDir    string
	Interval     time.Duration
	Logger       *slog.Logger
}

// Status is the content of the status file.
type Status struct {
	Match         string    `json:"match"`
	Time          time.Time `json:"time"`
	Tick          uint64    `json:"tick"`
	Zones         int       `json:"zones"`
	Points        int       `json:"points"`
	Units         int       `json:"units"`
	PendingTasks  int       `json:"pendingTasks"`
	PendingWrites int       `json:"pendingWrites"`
	LastExecuteMs float32   `json:"lastExecuteMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status and the matching performance sample.
func (s *Service) GetProgramStatus() (Status, core.TickPerformance) {
	stats := s.deps.Stats.Stats()
	status := Status{
		Match:         s.deps.MatchContext.GetMatch().MatchName,
		Time:          time.Now(),
		Tick:          stats.Tick,
		Zones:         stats.Zones,
		Points:        stats.Points,
		Units:         stats.Units,
		LastExecuteMs: float32(stats.LastExecute.Microseconds()) / 1000,
	}
	if s.deps.Tasks != nil {
		status.PendingTasks = s.deps.Tasks.Len()
	}
	if p, ok := s.deps.Backend.(pending); ok {
		status.PendingWrites = p.Pending()
	}

	perf := core.TickPerformance{
		Time:          status.Time,
		Tick:          status.Tick,
		Zones:         status.Zones + status.Points,
		Units:         status.Units,
		PendingTasks:  status.PendingTasks,
		LastExecuteMs: status.LastExecuteMs,
	}
	return status, perf
}

// Sample takes one status sample. Nothing is recorded while no match is
// active. The backend call is posted to the authoritative loop.
func (s *Service) Sample() {
	if !s.deps.MatchContext.Active() {
		return
	}
	logger := s.deps.Logger
	status, perf := s.GetProgramStatus()

	if err := s.writeStatusFile(status); err != nil {
		logger.Error("Error writing status file", "error", err)
	}

	if s.deps.Backend != nil {
		record := func() {
			if err := s.deps.Backend.RecordTickPerformance(perf); err != nil {
				logger.Error("Error recording performance", "error", err)
			}
		}
		if s.deps.Tasks != nil {
			s.deps.Tasks.Post(record)
		} else {
			record()
		}
	}

	if s.deps.Performance != nil {
		if err := s.deps.Performance.WritePerformance(perf); err != nil {
			logger.Warn("Error writing performance point", "error", err)
		}
	}
}

func (s *Service) writeStatusFile(status Status) error {
	if s.deps.StatusDir == "" {
		return nil
	}
	body, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return os.WriteFile(filepath.Join(s.deps.StatusDir, StatusFileName), append(body, '\n'), 0644)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.deps.StatusDir != "" {
		if err := os.MkdirAll(s.deps.StatusDir, 0755); err != nil {
			return fmt.Errorf("creating status dir: %w", err)
		}
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stopChan, s.done)
	return nil
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.deps.Logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
