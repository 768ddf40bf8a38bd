package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"webb-archiver/pkg/config"
	"webb-archiver/pkg/fetch"
	"webb-archiver/pkg/models"
	"webb-archiver/pkg/parse"
	"webb-archiver/pkg/utils"
)

// Archiver writes an entry's qualifying assets and its companion text file into the output directory
type Archiver struct {
	outputDir    string
	baseURL      string
	labelFilters []string
	hashFiles    bool // Digests are only needed for the run manifest
	fetcher      fetch.HTTPFetcher
	log          *logrus.Entry
}

// NewArchiver creates an Archiver for cfg.OutputDir
func NewArchiver(cfg *config.AppConfig, fetcher fetch.HTTPFetcher, log *logrus.Entry) *Archiver {
	return &Archiver{
		outputDir:    cfg.OutputDir,
		baseURL:      cfg.Target.BaseURL,
		labelFilters: config.AssetLabelFilters,
		hashFiles:    cfg.EnableManifest,
		fetcher:      fetcher,
		log:          log,
	}
}

func (a *Archiver) textPath(base string) string {
	return filepath.Join(a.outputDir, base+".txt")
}

// Exists reports whether base has already been archived. The .txt file is the only marker.
func (a *Archiver) Exists(base string) bool {
	_, err := os.Stat(a.textPath(base))
	return err == nil
}

// Qualifies reports whether a link label names a full resolution TIF asset
func (a *Archiver) Qualifies(label string) bool {
	for _, filter := range a.labelFilters {
		if !strings.Contains(label, filter) {
			return false
		}
	}
	return true
}

// Archive downloads every qualifying link to base.<ext>, then writes base.txt.
// Links sharing an extension overwrite each other in document order.
func (a *Archiver) Archive(ctx context.Context, base string, detail models.DetailPage) (*models.ArchivedRecord, error) {
	record := &models.ArchivedRecord{BaseName: base}
	destBase := filepath.Join(a.outputDir, base)

	for _, link := range detail.Links {
		if !a.Qualifies(link.Label) {
			continue
		}
		linkLog := a.log.WithFields(logrus.Fields{"label": strings.TrimSpace(link.Label), "href": link.Href})
		if strings.TrimSpace(link.Href) == "" {
			return record, fmt.Errorf("%w: qualifying link '%s' has no href URL", utils.ErrParsing, strings.TrimSpace(link.Label))
		}
		assetURL, err := parse.ResolveReference(a.baseURL, link.Href)
		if err != nil {
			return record, err
		}

		linkLog.Debug("Downloading asset")
		result, err := a.fetcher.Download(ctx, assetURL, destBase)
		if err != nil {
			return record, err
		}

		file := models.ArchivedFile{
			Path:      filepath.Base(result.Path),
			SourceURL: assetURL,
			Bytes:     result.Bytes,
		}
		if a.hashFiles {
			file.SHA256, err = utils.FileDigest(result.Path)
			if err != nil {
				linkLog.Warnf("Could not hash downloaded asset: %v", err)
			}
		}
		record.Assets = append(record.Assets, file)
	}

	text := RenderFactsText(detail.ReleaseDate, detail.AboutImage, detail.Facts)
	txtPath := a.textPath(base)
	if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
		return record, fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, txtPath, err)
	}
	record.Text = models.ArchivedFile{Path: filepath.Base(txtPath), Bytes: int64(len(text))}
	if a.hashFiles {
		var err error
		if record.Text.SHA256, err = utils.FileDigest(txtPath); err != nil {
			a.log.Warnf("Could not hash text file: %v", err)
		}
	}
	return record, nil
}
