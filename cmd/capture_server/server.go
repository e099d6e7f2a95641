package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rtsforge/capturepoint/internal/api"
	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/internal/dispatcher"
	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/internal/gamethread"
	"github.com/rtsforge/capturepoint/internal/handlers"
	"github.com/rtsforge/capturepoint/internal/influx"
	"github.com/rtsforge/capturepoint/internal/layout"
	"github.com/rtsforge/capturepoint/internal/logging"
	"github.com/rtsforge/capturepoint/internal/match"
	"github.com/rtsforge/capturepoint/internal/monitor"
	"github.com/rtsforge/capturepoint/internal/processor"
	"github.com/rtsforge/capturepoint/internal/replication"
	"github.com/rtsforge/capturepoint/internal/spatial"
	"github.com/rtsforge/capturepoint/internal/storage"
	"github.com/rtsforge/capturepoint/internal/ticking"
	"github.com/rtsforge/capturepoint/internal/world"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/rtsforge/capturepoint/pkg/hostcall"
	"github.com/sourcegraph/conc"
)

// serverOptions is everything newServer reads. Config values are resolved by
// the caller so tests can build a server without viper.
type serverOptions struct {
	Logger       *slog.Logger
	ZLog         zerolog.Logger
	Out          io.Writer
	LogsDir      string
	SessionStart time.Time

	Capture        config.CaptureConfig
	Ticking        config.TickingConfig
	Storage        config.StorageConfig
	Influx         config.InfluxConfig
	Upload         config.UploadConfig
	StatusInterval time.Duration
}

// server owns the authoritative loop: host calls come in through the bridge,
// the processor runs once per frame and the task queue is drained after it.
type server struct {
	logger       *slog.Logger
	zlog         zerolog.Logger
	logsDir      string
	sessionStart time.Time
	frame        time.Duration

	tasks      *gamethread.Tasks
	world      *world.World
	mirror     *replication.Mirror
	emitter    *events.Emitter
	processor  *processor.Processor
	matchCtx   *match.Context
	handlers   *handlers.Service
	dispatcher *dispatcher.Dispatcher
	bridge     *hostcall.Bridge

	layout      *layout.Layout
	tickingBase ticking.Config

	backend storage.Backend
	influx  *influx.Manager
	monitor *monitor.Service

	uploader  *api.Client
	uploadTag string
	uploads   conc.WaitGroup

	closeOnce sync.Once
}

func newServer(opts serverOptions) (*server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionStart.IsZero() {
		opts.SessionStart = time.Now()
	}

	s := &server{
		logger:       opts.Logger,
		zlog:         opts.ZLog,
		logsDir:      opts.LogsDir,
		sessionStart: opts.SessionStart,
		frame:        frameDuration(opts.Capture.FrameRate),
		world:        world.New(),
		mirror:       replication.NewMirror(),
		matchCtx:     match.NewContext(),
		tickingBase:  tickingConfig(opts.Ticking),
	}

	var err error
	s.tasks, err = gamethread.NewTasks(s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating task queue: %w", err)
	}
	s.emitter, err = events.NewEmitter(s.tasks, s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating emitter: %w", err)
	}
	s.emitter.Register(world.SnapListener{World: s.world})

	deps := processor.Dependencies{
		Units:   s.world,
		Zones:   s.world,
		Claims:  s.world,
		Economy: s.world,
		Emitter: s.emitter,
		Mirror:  s.mirror,
		Logger:  s.logger.With("component", "processor"),
	}
	filter, err := spatial.CompileFilter(opts.Capture.UnitFilter)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		deps.Filter = filter
		s.logger.Info("Unit filter compiled", "expr", filter.String())
	}

	s.processor, err = processor.New(processor.Config{
		Mode:                  core.Mode(opts.Capture.Mode),
		ExecutionInterval:     opts.Capture.ExecutionInterval,
		DefaultCaptureTime:    opts.Capture.DefaultCaptureTime,
		MinUnitsToCapture:     opts.Capture.MinUnitsToCapture,
		Tag:                   opts.Capture.Tag,
		ParallelThreshold:     opts.Capture.ParallelThreshold,
		Workers:               opts.Capture.Workers,
		ClientRefreshInterval: opts.Capture.ClientRefreshInterval,
		Debug:                 opts.Capture.Debug,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	s.layout, err = layout.Load(opts.Capture.LayoutFile)
	if err != nil {
		return nil, fmt.Errorf("loading zone layout: %w", err)
	}

	s.handlers = handlers.NewService(handlers.Dependencies{
		World:     s.world,
		Processor: s.processor,
		Emitter:   s.emitter,
		Mirror:    s.mirror,
		Tasks:     s.tasks,
		Match:     s.matchCtx,
		Logger:    s.logger.With("component", "handlers"),
		Version:   CurrentExtensionVersion,
		BuildDate: BuildDate,
	})
	s.handlers.OnMatchStart(s.applyLayout)
	s.handlers.OnMatchEnd(s.announceExport)

	s.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(s.zlog.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	s.handlers.RegisterHandlers(s.dispatcher)
	s.dispatcher.Register(":LOG:", s.handleLog)
	s.bridge = hostcall.New(ExtensionName, CurrentExtensionVersion, s.dispatcher, opts.Out)

	if err := s.initStorage(opts.Storage); err != nil {
		return nil, err
	}

	s.initInflux(opts.Influx)
	if opts.Upload.Enabled {
		s.uploader = api.New(opts.Upload.ServerURL, opts.Upload.APIKey)
		s.uploadTag = opts.Upload.Tag
	}

	monitorDeps := monitor.Dependencies{
		Stats:        s.processor,
		Tasks:        s.tasks,
		MatchContext: s.matchCtx,
		Backend:      s.backend,
		StatusDir:    s.logsDir,
		Interval:     opts.StatusInterval,
		Logger:       s.logger.With("component", "monitor"),
	}
	if s.influx != nil {
		monitorDeps.Performance = s.influx
	}
	s.monitor = monitor.NewService(monitorDeps)

	return s, nil
}

// initInflux connects the timeline writer. A failed connection falls back to
// the backup file; only a disabled or unusable manager is dropped.
func (s *server) initInflux(cfg config.InfluxConfig) {
	if !cfg.Enabled {
		return
	}
	dir := cfg.BackupDir
	if dir == "" {
		dir = s.logsDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("Failed to create InfluxDB backup dir", "error", err)
		return
	}
	backupPath := filepath.Join(dir, fmt.Sprintf("%s_influx_%s.log.gz", ExtensionName, s.sessionStart.Format("20060102_150405")))

	m := influx.NewManager(cfg, s.zlog.With().Str("component", "influx").Logger(), backupPath)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		s.logger.Error("Failed to initialize InfluxDB", "error", err)
		return
	}

	s.influx = m
	s.emitter.Register(influx.NewTimeline(m, func() string {
		return s.matchCtx.GetMatch().MatchName
	}))
	s.dispatcher.Register(":METRIC:", s.handleMetric, dispatcher.Buffered(1000))
}

func (s *server) handleMetric(e dispatcher.Event) (any, error) {
	bucket, point, err := influx.ProcessMetricData(e.Args)
	if err != nil {
		return nil, err
	}
	return nil, s.influx.WritePoint(bucket, point)
}

// handleLog takes :LOG:|source|level|message from the host script.
func (s *server) handleLog(e dispatcher.Event) (any, error) {
	if len(e.Args) < 3 {
		return nil, fmt.Errorf(":LOG: wants source, level and message, got %d args", len(e.Args))
	}
	logging.WriteHostLog(s.logger, e.Args[0], e.Args[1], strings.Join(e.Args[2:], "|"))
	return nil, nil
}

// applyLayout loads the configured zone layout into the fresh world. A layout
// bound to another map is skipped.
func (s *server) applyLayout(m core.Match) {
	s.processor.ClearPoints()
	l := s.layout
	if l == nil || len(l.Zones)+len(l.Claims) == 0 {
		return
	}
	if l.Map != "" && !strings.EqualFold(l.Map, m.MapName) {
		s.logger.Info("Zone layout is for another map, skipping", "layout", l.Map, "map", m.MapName)
		return
	}

	points, err := l.Apply(s.world, s.tickingBase)
	if err != nil {
		s.logger.Error("Failed to apply zone layout", "error", err)
	}
	for _, pt := range points {
		s.processor.AddPoint(pt)
	}

	if rec, ok := s.backend.(storage.ZoneRecorder); ok {
		for _, z := range l.Zones {
			if err := rec.RecordZone(z.ID, z.ZoneConfig); err != nil {
				s.logger.Error("Failed to record layout zone", "zone", z.ID, "error", err)
			}
		}
	}
	s.logger.Info("Zone layout applied", "zones", len(l.Zones)-len(points), "points", len(points), "claims", len(l.Claims))
}

// announceExport tells the host where the match file went.
func (s *server) announceExport() {
	exp, ok := s.backend.(storage.Exportable)
	if !ok {
		return
	}
	path := exp.GetExportedFilePath()
	if path == "" {
		return
	}
	meta := exp.GetExportMetadata()
	s.logger.Info("Match exported", "path", path, "zones", meta.Zones, "duration", meta.MatchDuration)
	if err := s.bridge.Callback(":EXPORT:", path); err != nil {
		s.logger.Warn("Failed to send export callback", "error", err)
	}
	if s.uploader != nil {
		s.uploads.Go(func() { s.upload(path, meta) })
	}
}

// upload pushes an exported match to the results server off the loop.
func (s *server) upload(path string, meta core.ExportMetadata) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.uploader.Healthcheck(ctx); err != nil {
		s.logger.Warn("Results server unreachable, keeping local export", "path", path, "error", err)
		return
	}
	if err := s.uploader.Upload(ctx, path, meta, s.uploadTag); err != nil {
		s.logger.Error("Failed to upload match", "path", path, "error", err)
		return
	}
	s.logger.Info("Match uploaded", "path", path, "match", meta.MatchName)
	if err := s.bridge.Callback(":UPLOADED:", meta.MatchName); err != nil {
		s.logger.Warn("Failed to send upload callback", "error", err)
	}
}

// step runs one frame of the authoritative loop.
func (s *server) step(dt time.Duration) {
	if err := s.processor.Execute(dt); err != nil {
		s.logger.Error("Capture pass failed", "error", err)
	}
	s.tasks.Drain()
	s.matchCtx.SetTick(s.processor.Stats().Tick)
}

// run serves host calls from in and ticks at the frame rate until in closes
// or ctx is done.
func (s *server) run(ctx context.Context, in io.Reader) error {
	if err := s.monitor.Start(); err != nil {
		s.logger.Warn("Failed to start status monitor", "error", err)
	}
	if err := s.bridge.Callback(":EXT:READY:", CurrentExtensionVersion); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- s.bridge.Serve(ctx, in) }()

	ticker := time.NewTicker(s.frame)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-served:
			s.dispatcher.Wait()
			s.step(0)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("reading host calls: %w", err)
			}
			return nil
		case now := <-ticker.C:
			s.step(now.Sub(last))
			last = now
		}
	}
}

// replay runs a recorded call file on a simulated clock. `:WAIT:|seconds`
// advances the clock in frame steps; every other line is a host call.
func (s *server) replay(ctx context.Context, r io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}

		command, args, err := hostcall.ParseLine(sc.Text())
		if errors.Is(err, hostcall.ErrEmptyCall) {
			continue
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		if command == ":WAIT:" {
			if len(args) != 1 {
				return fmt.Errorf("line %d: :WAIT: takes one argument", line)
			}
			secs, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			s.advance(time.Duration(secs * float64(time.Second)))
			continue
		}

		reply := s.bridge.Call(command, args)
		if strings.HasPrefix(reply, `["error"`) {
			s.logger.WarnContext(logging.With(ctx, "line", line, "command", command), "Replayed call failed", "reply", reply)
		}
		if out != nil {
			fmt.Fprintf(out, "%d %s\n", line, reply)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	s.dispatcher.Wait()
	s.step(0)
	return nil
}

// advance steps the loop through d in frame-sized steps.
func (s *server) advance(d time.Duration) {
	s.dispatcher.Wait()
	s.step(0)
	for d > 0 {
		dt := min(s.frame, d)
		s.step(dt)
		d -= dt
	}
}

// shutdown ends a running match, then closes storage and telemetry.
func (s *server) shutdown() {
	s.closeOnce.Do(s.close)
}

func (s *server) close() {
	s.monitor.Stop()

	if s.matchCtx.Active() {
		s.logger.Info("Ending running match before shutdown")
		if _, err := s.dispatcher.Dispatch(dispatcher.Event{Command: ":END:", Timestamp: time.Now()}); err != nil {
			s.logger.Error("Failed to end match", "error", err)
		}
		s.tasks.Drain()
	}
	s.uploads.Wait()

	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if s.influx != nil {
		if err := s.influx.Close(); err != nil {
			s.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
}

func frameDuration(frameRate int) time.Duration {
	if frameRate <= 0 {
		frameRate = 30
	}
	return time.Second / time.Duration(frameRate)
}

func tickingConfig(c config.TickingConfig) ticking.Config {
	base := ticking.DefaultConfig()
	if c.TickInterval > 0 {
		base.TickInterval = c.TickInterval
	}
	if c.CaptureTime > 0 {
		base.CaptureTime = c.CaptureTime
	}
	if c.RecaptureTime > 0 {
		base.RecaptureTime = c.RecaptureTime
	}
	if c.MultiUnitBonus > 0 {
		base.MultiUnitBonus = c.MultiUnitBonus
	}
	if c.MaxCapturingUnits > 0 {
		base.MaxCapturingUnits = c.MaxCapturingUnits
	}
	if c.CaptureRadius > 0 {
		base.CaptureRadius = c.CaptureRadius
	}
	if c.IncomeInterval > 0 {
		base.IncomeInterval = c.IncomeInterval
	}
	if c.IncomeAmount > 0 {
		base.IncomeAmount = c.IncomeAmount
	}
	base.IdleDecay = c.IdleDecay
	base.Overlap = c.Overlap
	return base
}
