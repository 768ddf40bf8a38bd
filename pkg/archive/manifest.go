package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"webb-archiver/pkg/config"
	"webb-archiver/pkg/models"
)

// ManifestWriter accumulates per-entry results for one run and writes them as YAML when enabled.
// The manifest is a report only; nothing reads it back.
type ManifestWriter struct {
	manifest models.RunManifest
	enabled  bool
	path     string
	log      *logrus.Entry
}

// NewManifestWriter starts a run with a fresh run id
func NewManifestWriter(cfg *config.AppConfig, log *logrus.Entry) *ManifestWriter {
	return &ManifestWriter{
		manifest: models.RunManifest{
			RunID:        uuid.NewString(),
			ListingURL:   cfg.Target.ListingURL,
			OutputDir:    cfg.OutputDir,
			RunStartTime: time.Now(),
			Entries:      make([]models.EntryResult, 0),
		},
		enabled: cfg.EnableManifest,
		path:    filepath.Join(cfg.OutputDir, config.GetEffectiveManifestFilename(*cfg)),
		log:     log,
	}
}

// Record adds one entry's result and updates the totals
func (mw *ManifestWriter) Record(result models.EntryResult) {
	if result.ProcessedAt.IsZero() {
		result.ProcessedAt = time.Now()
	}
	switch result.Outcome {
	case models.OutcomeArchived:
		mw.manifest.TotalArchived++
	case models.OutcomeSkipped:
		mw.manifest.TotalSkipped++
	case models.OutcomeNoTitle:
		mw.manifest.TotalNoTitle++
	case models.OutcomeFailed:
		mw.manifest.TotalFailed++
	}
	mw.manifest.Entries = append(mw.manifest.Entries, result)
}

// Manifest returns a copy of the report collected so far
func (mw *ManifestWriter) Manifest() models.RunManifest {
	m := mw.manifest
	m.Entries = append([]models.EntryResult(nil), mw.manifest.Entries...)
	return m
}

// Path is where the manifest is written
func (mw *ManifestWriter) Path() string {
	return mw.path
}

// Finish stamps the end of the run and writes the manifest file when enabled
func (mw *ManifestWriter) Finish(aborted bool) error {
	mw.manifest.RunEndTime = time.Now()
	mw.manifest.Aborted = aborted
	if !mw.enabled {
		mw.log.Debug("Run manifest is disabled.")
		return nil
	}

	yamlData, err := yaml.Marshal(&mw.manifest)
	if err != nil {
		mw.log.Errorf("Failed to marshal run manifest to YAML: %v", err)
		return fmt.Errorf("failed to marshal run manifest %s to YAML: %w", mw.manifest.RunID, err)
	}
	if err := os.WriteFile(mw.path, yamlData, 0644); err != nil {
		mw.log.Errorf("Failed to write run manifest '%s': %v", mw.path, err)
		return fmt.Errorf("failed to write run manifest '%s': %w", mw.path, err)
	}

	mw.log.Infof("Wrote run manifest (%d entries) to %s", len(mw.manifest.Entries), mw.path)
	return nil
}
