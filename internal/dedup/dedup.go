// Package dedup collapses engagement records to one per person and drops
// persons already delivered in earlier runs.
package dedup

import (
	"go.uber.org/zap"

	"github.com/sells-group/engager-cli/internal/model"
	"github.com/sells-group/engager-cli/internal/tracker"
)

// Stats counts records at each step of MergeAndFilter.
type Stats struct {
	Total          int
	Unique         int
	PreviouslySent int
	New            int
}

// Merge folds records by person id in input order. Records without a person
// id are skipped. A later record for a known person appends its engagement
// type to the composite label when not already present, and fills in the
// profile URL if the merged record has none. Output keeps first-seen order.
func Merge(records []model.EngagementRecord) []model.MergedRecord {
	index := make(map[string]int, len(records))
	out := make([]model.MergedRecord, 0, len(records))

	for _, rec := range records {
		if rec.PersonID == "" {
			continue
		}
		i, seen := index[rec.PersonID]
		if !seen {
			index[rec.PersonID] = len(out)
			out = append(out, model.MergedRecord{EngagementRecord: rec})
			continue
		}
		out[i] = mergeInto(out[i], rec)
	}
	return out
}

func mergeInto(existing model.MergedRecord, rec model.EngagementRecord) model.MergedRecord {
	existing.EngagementType = existing.EngagementType.With(rec.EngagementType)
	if existing.ProfileURL == "" && rec.ProfileURL != "" {
		existing.ProfileURL = rec.ProfileURL
	}
	return existing
}

// Filter drops merged records whose person id is in alreadySent.
func Filter(merged []model.MergedRecord, alreadySent tracker.IDSet) []model.MergedRecord {
	out := make([]model.MergedRecord, 0, len(merged))
	for _, m := range merged {
		if alreadySent.Contains(m.PersonID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MergeAndFilter merges records per person and removes those already sent.
func MergeAndFilter(records []model.EngagementRecord, alreadySent tracker.IDSet) ([]model.MergedRecord, Stats) {
	merged := Merge(records)
	fresh := Filter(merged, alreadySent)

	stats := Stats{
		Total:          len(records),
		Unique:         len(merged),
		PreviouslySent: len(merged) - len(fresh),
		New:            len(fresh),
	}
	zap.L().Info("dedup: merged engagers",
		zap.Int("total", stats.Total),
		zap.Int("unique", stats.Unique),
		zap.Int("previously_sent", stats.PreviouslySent),
		zap.Int("new", stats.New),
	)
	return fresh, stats
}
