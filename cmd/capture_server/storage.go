package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/internal/storage"
	"github.com/rtsforge/capturepoint/internal/storage/gormstore"
	"github.com/rtsforge/capturepoint/internal/storage/memory"
	sqlitestorage "github.com/rtsforge/capturepoint/internal/storage/sqlite"
	wsstorage "github.com/rtsforge/capturepoint/internal/storage/websocket"
)

func (s *server) initStorage(storageCfg config.StorageConfig) error {
	s.logger.Debug("Initializing storage backend", "type", storageCfg.Type)

	backend, err := s.createStorageBackend(storageCfg)
	if err != nil {
		s.logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	if err := backend.Init(); err != nil {
		s.logger.Error("Failed to initialize storage backend", "error", err)
		return err
	}

	s.backend = backend
	s.handlers.SetBackend(backend)
	s.emitter.Register(backend)
	return nil
}

func (s *server) createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	zlog := s.zlog.With().Str("storage", storageCfg.Type).Logger()

	switch storageCfg.Type {
	case "postgres":
		s.logger.Info("Postgres storage backend initialized")
		return gormstore.New(gormstore.Dependencies{
			DBConfig: config.GetDBConfig(),
			Logger:   zlog,
		}), nil

	case "sqlite":
		dumpPath := storageCfg.SQLite.Path
		if dumpPath == "" {
			dumpPath = filepath.Join(s.logsDir, fmt.Sprintf("%s_%s.db", ExtensionName, s.sessionStart.Format("20060102_150405")))
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
		}, zlog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		s.logger.Info("SQLite storage backend initialized", "dumpPath", dumpPath)
		return backend, nil

	case "websocket":
		wsURL := httpToWS(storageCfg.Websocket.URL)
		s.logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:                wsURL,
			Secret:             storageCfg.Websocket.Secret,
			SnapshotsPerSecond: storageCfg.Websocket.SnapshotsPerSecond,
		}, s.logger), nil

	case "", "memory":
		s.logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
