package storage_test

import (
	"testing"

	"github.com/rtsforge/capturepoint/internal/storage"
	"github.com/rtsforge/capturepoint/internal/storage/gormstore"
	"github.com/rtsforge/capturepoint/internal/storage/memory"
	sqlitestorage "github.com/rtsforge/capturepoint/internal/storage/sqlite"
	"github.com/rtsforge/capturepoint/internal/storage/websocket"
	"github.com/stretchr/testify/assert"
)

var (
	_ storage.Backend      = (*memory.Backend)(nil)
	_ storage.Backend      = (*gormstore.Backend)(nil)
	_ storage.Backend      = (*sqlitestorage.Backend)(nil)
	_ storage.Backend      = (*websocket.Backend)(nil)
	_ storage.Exportable   = (*memory.Backend)(nil)
	_ storage.ZoneRecorder = (*memory.Backend)(nil)
	_ storage.ZoneRecorder = (*gormstore.Backend)(nil)
	_ storage.ZoneRecorder = (*sqlitestorage.Backend)(nil)
)

func TestOptionalInterfaces(t *testing.T) {
	tests := []struct {
		name       string
		backend    storage.Backend
		exportable bool
		zones      bool
	}{
		{"memory", &memory.Backend{}, true, true},
		{"gorm", &gormstore.Backend{}, false, true},
		{"websocket", &websocket.Backend{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.backend.(storage.Exportable)
			assert.Equal(t, tt.exportable, ok)
			_, ok = tt.backend.(storage.ZoneRecorder)
			assert.Equal(t, tt.zones, ok)
		})
	}
}
