package driver

import "github.com/roach88/bsonmend/internal/processor"

// CollectionSummary holds per-stream counters.
type CollectionSummary struct {
	Name     string `json:"name"`
	Scanned  int    `json:"scanned"`
	Changed  int    `json:"changed"`
	Replaced int    `json:"replaced"`
	Skipped  int    `json:"skipped"` // changed but _id unusable
	Vanished int    `json:"vanished"`
	Declined int    `json:"declined"`
	Failed   int    `json:"failed"`
}

func (s *CollectionSummary) add(o processor.Outcome) {
	if o.Changed {
		s.Changed++
	}
	if o.Replaced {
		s.Replaced++
	}
	if o.IdentityMissing {
		s.Skipped++
	}
	if o.Vanished {
		s.Vanished++
	}
	for _, d := range o.Decisions {
		if !d.Accepted {
			s.Declined++
		}
	}
}

// Summary is the result of one Run.
type Summary struct {
	Collections []CollectionSummary `json:"collections"`
}

// Totals sums all collections.
func (s Summary) Totals() CollectionSummary {
	total := CollectionSummary{Name: "total"}
	for _, c := range s.Collections {
		total.Scanned += c.Scanned
		total.Changed += c.Changed
		total.Replaced += c.Replaced
		total.Skipped += c.Skipped
		total.Vanished += c.Vanished
		total.Declined += c.Declined
		total.Failed += c.Failed
	}
	return total
}
