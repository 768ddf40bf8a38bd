package models

// EntryOutcome represents how a listing entry ended up after processing
type EntryOutcome string

const (
	OutcomeUnset    EntryOutcome = ""         // Zero value = not processed yet
	OutcomeArchived EntryOutcome = "archived" // Asset(s) downloaded and text file written
	OutcomeSkipped  EntryOutcome = "skipped"  // <base>.txt already present
	OutcomeNoTitle  EntryOutcome = "no_title" // Detail page had no og:title tag
	OutcomeFailed   EntryOutcome = "failed"   // Fetch, parse, download or write error
)

// String implements fmt.Stringer for logging
func (o EntryOutcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// IsValid returns true if the outcome is a known terminal value
func (o EntryOutcome) IsValid() bool {
	switch o {
	case OutcomeArchived, OutcomeSkipped, OutcomeNoTitle, OutcomeFailed:
		return true
	}
	return false
}

// IsFailure returns true if the entry did not complete
func (o EntryOutcome) IsFailure() bool {
	return o == OutcomeFailed
}
