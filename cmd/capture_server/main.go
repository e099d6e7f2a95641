// Command capture_server runs the capture-point core behind the host call
// protocol: calls arrive on stdin, replies and callbacks leave on stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/internal/logging"
	intOtel "github.com/rtsforge/capturepoint/internal/otel"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gopkg.in/yaml.v3"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.0.1"
	BuildDate               string = "unknown"

	ExtensionName string = "capture_server"
)

var CLI struct {
	ConfigDir string `help:"Directory holding ${config_file}." default:"." type:"path" short:"c"`
	LogLevel  string `help:"Override the configured log level (debug, info, warn, error)."`
	Version   bool   `help:"Print version information and exit." short:"v"`

	Serve struct{} `cmd:"" default:"1" help:"Read host calls from stdin and run the capture loop."`

	Replay struct {
		File    string `arg:"" type:"existingfile" help:"Call file, optionally gzipped. :WAIT:|seconds advances the clock."`
		Replies bool   `help:"Print every reply with its line number."`
	} `cmd:"" help:"Run a recorded call file on a simulated clock."`

	Config struct{} `cmd:"" help:"Write the effective configuration to standard output as YAML."`
}

// session is the per-process logging setup.
type session struct {
	start   time.Time
	logsDir string
	logFile *os.File
	slogs   *logging.SlogManager
	logger  *slog.Logger
	zlog    zerolog.Logger
	otel    *intOtel.Provider
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(ExtensionName),
		kong.Description("capture-point control server"),
		kong.UsageOnError(),
		kong.Vars{"config_file": config.FileName},
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Version {
		fmt.Printf("%s %s (built %s)\n", ExtensionName, CurrentExtensionVersion, BuildDate)
		os.Exit(0)
	}

	configErr := config.Load(CLI.ConfigDir)
	if CLI.LogLevel != "" {
		viper.Set("logLevel", CLI.LogLevel)
	}

	switch ctx.Command() {
	case "config":
		if err := writeConfig(os.Stdout); err != nil {
			writeError(err)
		}
		return
	case "replay <file>":
		if err := replayCommand(CLI.Replay.File, CLI.Replay.Replies, configErr); err != nil {
			writeError(err)
		}
	default:
		if err := serveCommand(configErr); err != nil {
			writeError(err)
		}
	}
}

func serveCommand(configErr error) error {
	sess, err := newSession(configErr)
	if err != nil {
		return err
	}
	defer sess.close()

	srv, err := newServer(sess.serverOptions(os.Stdout))
	if err != nil {
		sess.logger.Error("Failed to start capture server", "error", err)
		return err
	}
	sess.attach(srv)
	defer srv.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess.logger.Info("Capture server running", "frame", srv.frame, "mode", srv.processor.Mode())
	return srv.run(ctx, os.Stdin)
}

func replayCommand(path string, replies bool, configErr error) error {
	sess, err := newSession(configErr)
	if err != nil {
		return err
	}
	defer sess.close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var in io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer gz.Close()
		in = gz
	}

	srv, err := newServer(sess.serverOptions(os.Stdout))
	if err != nil {
		return err
	}
	sess.attach(srv)
	defer srv.shutdown()

	var out io.Writer
	if replies {
		out = os.Stdout
	}

	start := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.replay(ctx, in, out); err != nil {
		return fmt.Errorf("replaying %s: %w", path, err)
	}
	sess.logger.Info("Replay finished", "file", path, "ticks", srv.processor.Stats().Tick, "took", time.Since(start))
	return nil
}

func writeConfig(w io.Writer) error {
	body, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = w.Write(body)
	return err
}

// newSession opens the session log file and sets up slog, zerolog, GELF and
// OTel. stdout carries the call protocol, so logs never go there.
func newSession(configErr error) (*session, error) {
	s := &session{
		start:   time.Now(),
		logsDir: viper.GetString("logsDir"),
		slogs:   logging.NewSlogManager(),
	}
	level := viper.GetString("logLevel")

	var logOut io.Writer = os.Stderr
	f, logPath, err := logging.OpenLogFile(s.logsDir, ExtensionName, s.start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log file: %v\n", err)
	} else {
		s.logFile = f
		logOut = f
	}

	zlevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || zlevel == zerolog.NoLevel {
		zlevel = zerolog.InfoLevel
	}
	s.zlog = zerolog.New(logOut).Level(zlevel).With().Timestamp().Logger()

	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		if w, err := logging.NewGELFWriter(graylogCfg.Address); err != nil {
			fmt.Fprintf(logOut, "Failed to connect to graylog: %v\n", err)
		} else {
			s.slogs.SetGELF(w)
		}
	}

	otelCfg := config.GetOTelConfig()
	var otelLogProvider *sdklog.LoggerProvider
	if otelCfg.Enabled {
		s.otel, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentExtensionVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logOut,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			fmt.Fprintf(logOut, "Failed to initialize OTel provider: %v\n", err)
		} else {
			otelLogProvider = s.otel.LoggerProvider()
		}
	}

	s.slogs.Setup(logOut, level, otelLogProvider)
	s.logger = s.slogs.Logger()
	slog.SetDefault(s.logger)

	if configErr != nil {
		s.logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		s.logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	s.logger.Info("Begin logging in logs directory", "path", logPath)
	return s, nil
}

func (s *session) serverOptions(out io.Writer) serverOptions {
	return serverOptions{
		Logger:         s.logger,
		ZLog:           s.zlog,
		Out:            out,
		LogsDir:        s.logsDir,
		SessionStart:   s.start,
		Capture:        config.GetCaptureConfig(),
		Ticking:        config.GetTickingConfig(),
		Storage:        config.GetStorageConfig(),
		Influx:         config.GetInfluxConfig(),
		Upload:         config.GetUploadConfig(),
		StatusInterval: config.GetDuration("statusInterval"),
	}
}

// attach wires the dynamic log attrs to the running server.
func (s *session) attach(srv *server) {
	s.slogs.GetMatchName = func() string {
		if !srv.matchCtx.Active() {
			return ""
		}
		return srv.matchCtx.GetMatch().MatchName
	}
	s.slogs.GetMatchID = func() uint { return srv.matchCtx.GetMatch().ID }
	s.slogs.GetTick = srv.matchCtx.Tick
	s.slogs.GetMode = func() string { return string(srv.processor.Mode()) }

	if s.otel != nil {
		srv.handlers.OnMatchEnd(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.otel.Flush(ctx); err != nil {
				s.logger.Warn("Failed to flush OTel logs", "error", err)
			}
		})
	}
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.slogs.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if s.otel != nil {
		s.otel.Shutdown(ctx)
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
}
