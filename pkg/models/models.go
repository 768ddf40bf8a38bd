package models

import "time"

// Link is one anchor from a detail page's links list
type Link struct {
	Label string // Anchor text, e.g. "Full Res (For Display), 4000 X 2250, TIF (36.61 MB)"
	Href  string // Raw href as found in the page (often protocol-relative)
}

// Fact is one entry of a detail page's facts table.
// A section header has Header set and no Values; a data row has Values (key first) and an empty Header.
type Fact struct {
	Header string   `yaml:"header,omitempty"`
	Values []string `yaml:"values,omitempty"`
}

// IsHeader reports whether the fact is a section header rather than a key/value row
func (f Fact) IsHeader() bool {
	return len(f.Values) == 0
}

// Key returns the first cell of a data row ("" for headers)
func (f Fact) Key() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Value returns the second cell of a data row, or "" when the row kept only one non-empty cell
func (f Fact) Value() string {
	if len(f.Values) < 2 {
		return ""
	}
	return f.Values[1]
}

// HeaderFact builds a section header entry
func HeaderFact(text string) Fact {
	return Fact{Header: text}
}

// PairFact builds a key/value entry from the non-empty cells of a row
func PairFact(values ...string) Fact {
	return Fact{Values: values}
}

// DetailPage holds everything extracted from one gallery detail page (title is handled separately)
type DetailPage struct {
	URL         string
	ReleaseDate string // Full text of the element holding the "Release Date:" label, or ""
	AboutImage  string // Tag-stripped "About This Image" text, or ""
	Links       []Link
	Facts       []Fact
}

// ArchivedFile describes one file written for an archived record
type ArchivedFile struct {
	Path      string `yaml:"path"` // Relative to the output directory
	SourceURL string `yaml:"source_url,omitempty"`
	Bytes     int64  `yaml:"bytes"`
	SHA256    string `yaml:"sha256,omitempty"`
}

// ArchivedRecord is the on-disk result of archiving one detail page
type ArchivedRecord struct {
	BaseName string
	Assets   []ArchivedFile // Downloaded binaries, in link order (a later one may overwrite an earlier one)
	Text     ArchivedFile   // The companion <base>.txt
}

// EntryResult records how one listing entry was handled during a run
type EntryResult struct {
	DetailURL   string         `yaml:"detail_url"`
	Title       string         `yaml:"title,omitempty"`
	BaseName    string         `yaml:"base_name,omitempty"`
	Outcome     EntryOutcome   `yaml:"outcome"`
	ErrorType   string         `yaml:"error_type,omitempty"`   // Error category (on failure)
	ReleaseDate string         `yaml:"release_date,omitempty"` // Only for archived entries
	Files       []ArchivedFile `yaml:"files,omitempty"`
	ProcessedAt time.Time      `yaml:"processed_at"`
}

// RunManifest holds the report of a single archive run, written as YAML when enabled
type RunManifest struct {
	RunID         string        `yaml:"run_id"`
	ListingURL    string        `yaml:"listing_url"`
	OutputDir     string        `yaml:"output_dir"`
	RunStartTime  time.Time     `yaml:"run_start_time"`
	RunEndTime    time.Time     `yaml:"run_end_time"`
	TotalArchived int           `yaml:"total_archived"`
	TotalSkipped  int           `yaml:"total_skipped"`
	TotalNoTitle  int           `yaml:"total_no_title"`
	TotalFailed   int           `yaml:"total_failed"`
	Aborted       bool          `yaml:"aborted,omitempty"`
	Entries       []EntryResult `yaml:"entries"`
}
