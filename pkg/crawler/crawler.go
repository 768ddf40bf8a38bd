package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"webb-archiver/pkg/archive"
	"webb-archiver/pkg/config"
	"webb-archiver/pkg/extract"
	"webb-archiver/pkg/fetch"
	"webb-archiver/pkg/models"
	"webb-archiver/pkg/parse"
	"webb-archiver/pkg/utils"
)

// Crawler walks the gallery listing once and archives every detail page it links to
type Crawler struct {
	log      *logrus.Entry
	cfg      *config.AppConfig
	fetcher  fetch.HTTPFetcher
	archiver *archive.Archiver
	manifest *archive.ManifestWriter
}

// RunSummary reports the totals of a finished run
type RunSummary struct {
	RunID    string
	Entries  int
	Archived int
	Skipped  int
	NoTitle  int
	Failed   int
	Aborted  bool // Run stopped before the last entry (abort_on_error, cancellation, listing failure)
	Duration time.Duration
}

// NewCrawler creates a Crawler and its archiver and manifest writer
func NewCrawler(cfg *config.AppConfig, fetcher fetch.HTTPFetcher, log *logrus.Entry) *Crawler {
	return &Crawler{
		log:      log,
		cfg:      cfg,
		fetcher:  fetcher,
		archiver: archive.NewArchiver(cfg, fetcher, log.WithField("component", "archiver")),
		manifest: archive.NewManifestWriter(cfg, log.WithField("component", "manifest")),
	}
}

// Run fetches the listing page and processes its entries in order.
// By default a failed entry is logged and the run continues; with AbortOnError the first
// failure stops the run and is returned.
func (c *Crawler) Run(ctx context.Context) (RunSummary, error) {
	runStart := time.Now()
	runLog := c.log.WithFields(logrus.Fields{"run_id": c.manifest.Manifest().RunID, "output_dir": c.cfg.OutputDir})

	runLog.Info("Getting observations webpage...")
	listing, err := c.fetcher.FetchDocument(ctx, c.cfg.Target.ListingURL)
	if err != nil {
		runErr := fmt.Errorf("fetching listing page '%s': %w", c.cfg.Target.ListingURL, err)
		return c.finish(runLog, runStart, runErr), runErr
	}
	runLog.Info("Got observations! Processing results.")

	hrefs := extract.ExtractListingEntries(listing.Doc, runLog)
	runLog.Debugf("Found %d result entries on the listing page", len(hrefs))

	var runErr error
	for i, href := range hrefs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = fmt.Errorf("run interrupted before entry %d: %w", i, ctxErr)
			break
		}

		entryLog := runLog.WithFields(logrus.Fields{"entry_index": i, "href": href})
		result, entryErr := c.processEntry(ctx, href, entryLog)
		c.manifest.Record(result)
		if entryErr == nil {
			continue
		}

		entryLog.WithField("error_type", result.ErrorType).Errorf("Entry failed: %v", entryErr)
		if c.cfg.AbortOnError {
			runErr = fmt.Errorf("aborting run at entry %d ('%s'): %w", i, href, entryErr)
			break
		}
	}

	summary := c.finish(runLog, runStart, runErr)
	if runErr == nil {
		runLog.Info("Done.")
	}
	return summary, runErr
}

// finish writes the manifest and builds the summary
func (c *Crawler) finish(runLog *logrus.Entry, runStart time.Time, runErr error) RunSummary {
	if err := c.manifest.Finish(runErr != nil); err != nil {
		runLog.Errorf("Failed to write run manifest: %v", err)
	}
	m := c.manifest.Manifest()
	summary := RunSummary{
		RunID:    m.RunID,
		Entries:  len(m.Entries),
		Archived: m.TotalArchived,
		Skipped:  m.TotalSkipped,
		NoTitle:  m.TotalNoTitle,
		Failed:   m.TotalFailed,
		Aborted:  m.Aborted,
		Duration: time.Since(runStart),
	}
	runLog.WithFields(logrus.Fields{
		"archived": summary.Archived,
		"skipped":  summary.Skipped,
		"no_title": summary.NoTitle,
		"failed":   summary.Failed,
		"duration": summary.Duration.Round(time.Millisecond),
	}).Debug("Run finished")
	return summary
}

// processEntry handles one listing entry: fetch the detail page, skip it when there is no title or
// it is already archived, otherwise download its assets and write its text file.
// A missing title is not an error. Panics are recovered and reported as a failure of this entry.
func (c *Crawler) processEntry(ctx context.Context, href string, entryLog *logrus.Entry) (result models.EntryResult, err error) {
	result.DetailURL = href
	defer func() {
		if r := recover(); r != nil {
			entryLog.Errorf("PANIC processing entry: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic processing entry '%s': %v", href, r)
		}
		result.ProcessedAt = time.Now()
		if err != nil {
			result.Outcome = models.OutcomeFailed
			result.ErrorType = utils.CategorizeError(err)
		}
	}()

	detailURL, err := parse.ResolveReference(c.cfg.Target.BaseURL, href)
	if err != nil {
		return result, err
	}
	result.DetailURL = detailURL

	page, err := c.fetcher.FetchDocument(ctx, detailURL)
	if err != nil {
		return result, err
	}

	title, err := extract.ExtractTitle(page.Doc)
	if errors.Is(err, utils.ErrNoTitle) {
		entryLog.Warnf("No title found: %s", detailURL)
		result.Outcome = models.OutcomeNoTitle
		return result, nil
	}
	if err != nil {
		return result, err
	}

	base := archive.DeriveFilename(title)
	result.Title = title
	result.BaseName = base
	if c.archiver.Exists(base) {
		entryLog.WithField("base_name", base).Debug("Already archived, skipping")
		result.Outcome = models.OutcomeSkipped
		return result, nil
	}

	entryLog.Infof("Downloading image: %s", title)
	detail, err := extract.ExtractDetail(detailURL, page.Doc, page.Raw)
	if err != nil {
		return result, err
	}
	record, err := c.archiver.Archive(ctx, base, detail)
	if err != nil {
		if record != nil {
			result.Files = record.Assets
		}
		return result, err
	}

	result.Outcome = models.OutcomeArchived
	result.ReleaseDate = detail.ReleaseDate
	result.Files = append(record.Assets, record.Text)
	return result, nil
}
