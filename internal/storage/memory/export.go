package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	v1 "github.com/rtsforge/capturepoint/internal/storage/memory/export/v1"
	"github.com/rtsforge/capturepoint/pkg/core"
)

var errNoMatch = errors.New("no match started")

// GetExportedFilePath returns the path of the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns metadata about the last export
func (b *Backend) GetExportMetadata() core.ExportMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMetadata
}

// exportJSON writes the match data to a JSON file, gzipped when configured.
// Callers hold mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.match.MatchName)
	timestamp := b.match.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", name, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	ownerships := 0
	for _, z := range export.Zones {
		ownerships += len(z.Ownership)
	}
	b.lastExportPath = outputPath
	b.lastExportMetadata = core.ExportMetadata{
		MapName:       export.MapName,
		MatchName:     export.MatchName,
		MatchDuration: export.Duration,
		Zones:         len(export.Zones),
		Ownerships:    ownerships,
	}
	return nil
}

func (b *Backend) buildExport() v1.Export {
	return v1.Build(&v1.MatchData{
		Match:       b.match,
		EndTime:     b.endTime,
		Zones:       b.zones,
		Performance: b.performance,
	})
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}
