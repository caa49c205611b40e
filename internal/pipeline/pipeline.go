// Package pipeline runs one end-to-end engager tracking pass: read posts from
// the sheet, collect engagements, drop people already sent, enrich the rest,
// deliver them, record them as sent, and write a snapshot.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/engager-cli/internal/config"
	"github.com/sells-group/engager-cli/internal/dedup"
	"github.com/sells-group/engager-cli/internal/delivery"
	"github.com/sells-group/engager-cli/internal/export"
	"github.com/sells-group/engager-cli/internal/model"
	"github.com/sells-group/engager-cli/internal/sheet"
	"github.com/sells-group/engager-cli/internal/tracker"
)

// PostSource lists post URLs.
type PostSource interface {
	FetchPostURLs(ctx context.Context, spreadsheetID, gid string) ([]string, error)
}

// EngagementCollector gathers raw engagements for a list of posts.
type EngagementCollector interface {
	CollectAll(ctx context.Context, postIDs []string) ([]model.EngagementRecord, error)
}

// ProfileEnricher attaches profile data to merged records.
type ProfileEnricher interface {
	Enrich(ctx context.Context, records []model.MergedRecord) []model.EnrichedRecord
}

// LeadSink delivers finished records downstream.
type LeadSink interface {
	Send(ctx context.Context, records []model.EnrichedRecord) delivery.Report
}

// PhaseResult records the outcome of one pipeline phase.
type PhaseResult struct {
	Name     string
	Duration time.Duration
}

// Summary describes a completed run.
type Summary struct {
	RunID          string
	Posts          int
	Engagements    int
	Unique         int
	PreviouslySent int
	NewLeads       int
	Enriched       int
	Delivery       delivery.Report
	TrackerAdded   int
	SnapshotPaths  []string
	Phases         []PhaseResult
}

// Pipeline wires the run phases together.
type Pipeline struct {
	cfg       *config.Config
	source    PostSource
	collector EngagementCollector
	tracker   tracker.Store
	enricher  ProfileEnricher
	sink      LeadSink
}

// New creates a Pipeline.
func New(
	cfg *config.Config,
	source PostSource,
	collector EngagementCollector,
	st tracker.Store,
	enricher ProfileEnricher,
	sink LeadSink,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		source:    source,
		collector: collector,
		tracker:   st,
		enricher:  enricher,
		sink:      sink,
	}
}

// Run executes one pass over at most limit posts (0 means all). Only sheet,
// tracker and snapshot failures are returned; collection, enrichment and
// delivery problems are logged and absorbed.
func (p *Pipeline) Run(ctx context.Context, limit int) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}

	restore := zap.ReplaceGlobals(zap.L().With(zap.String("run_id", sum.RunID)))
	defer restore()
	log := zap.L()
	log.Info("pipeline: starting run", zap.Int("limit", limit))

	phase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		d := time.Since(start)
		sum.Phases = append(sum.Phases, PhaseResult{Name: name, Duration: d})
		if err != nil {
			log.Error("pipeline: phase failed", zap.String("phase", name), zap.Duration("duration", d), zap.Error(err))
			return err
		}
		log.Info("pipeline: phase complete", zap.String("phase", name), zap.Duration("duration", d))
		return nil
	}

	// 1. Posts
	var postIDs []string
	if err := phase("posts", func() error {
		urls, err := p.source.FetchPostURLs(ctx, p.cfg.Sheet.SpreadsheetID, p.cfg.Sheet.GID)
		if err != nil {
			return eris.Wrap(err, "pipeline: fetch post urls")
		}
		postIDs = sheet.UniqueActivityIDs(urls)
		log.Info("pipeline: unique posts", zap.Int("urls", len(urls)), zap.Int("posts", len(postIDs)))
		if limit > 0 && limit < len(postIDs) {
			postIDs = postIDs[:limit]
			log.Info("pipeline: limiting posts", zap.Int("limit", limit))
		}
		return nil
	}); err != nil {
		return sum, err
	}
	sum.Posts = len(postIDs)

	// 2. Collect
	var records []model.EngagementRecord
	if err := phase("collect", func() error {
		var err error
		records, err = p.collector.CollectAll(ctx, postIDs)
		return eris.Wrap(err, "pipeline: collect")
	}); err != nil {
		return sum, err
	}
	sum.Engagements = len(records)

	// 3. Dedup against the tracker
	var fresh []model.MergedRecord
	var sent tracker.IDSet
	if err := phase("dedup", func() error {
		var err error
		sent, err = p.tracker.Load(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: load tracker")
		}
		var stats dedup.Stats
		fresh, stats = dedup.MergeAndFilter(records, sent)
		sum.Unique = stats.Unique
		sum.PreviouslySent = stats.PreviouslySent
		sum.NewLeads = stats.New
		return nil
	}); err != nil {
		return sum, err
	}

	// 4. Enrich
	var leads []model.EnrichedRecord
	_ = phase("enrich", func() error {
		leads = p.enricher.Enrich(ctx, fresh)
		for _, l := range leads {
			if l.Enriched {
				sum.Enriched++
			}
		}
		return nil
	})

	// 5. Deliver
	_ = phase("deliver", func() error {
		sum.Delivery = p.sink.Send(ctx, leads)
		return nil
	})

	// 6. Track. Every processed person counts as sent, whether or not its
	// webhook batch succeeded.
	newIDs := tracker.NewIDSet()
	for _, l := range leads {
		newIDs.Add(l.PersonID)
	}
	if len(newIDs) > 0 {
		if err := phase("track", func() error {
			return eris.Wrap(p.tracker.Save(ctx, sent, newIDs), "pipeline: save tracker")
		}); err != nil {
			return sum, err
		}
		sum.TrackerAdded = len(newIDs)
	}

	// 7. Snapshot
	if err := phase("snapshot", func() error {
		paths, err := WriteSnapshot(p.cfg.Output, leads)
		sum.SnapshotPaths = paths
		return err
	}); err != nil {
		return sum, err
	}

	log.Info("pipeline: run complete",
		zap.Int("posts", sum.Posts),
		zap.Int("engagements", sum.Engagements),
		zap.Int("new_leads", sum.NewLeads),
		zap.Int("enriched", sum.Enriched),
		zap.Int("delivered", sum.Delivery.Sent),
		zap.Int("delivery_failed", sum.Delivery.Failed),
		zap.Strings("snapshot", sum.SnapshotPaths),
	)
	return sum, nil
}

// WriteSnapshot writes leads in the configured format(s) and returns the
// paths written.
func WriteSnapshot(cfg config.OutputConfig, leads []model.EnrichedRecord) ([]string, error) {
	var paths []string
	if cfg.Format == "" || cfg.Format == "csv" || cfg.Format == "both" {
		if err := export.WriteCSV(cfg.CSVPath, leads); err != nil {
			return paths, eris.Wrap(err, "pipeline: write csv snapshot")
		}
		paths = append(paths, cfg.CSVPath)
	}
	if cfg.Format == "xlsx" || cfg.Format == "both" {
		if err := export.WriteXLSX(cfg.XLSXPath, leads); err != nil {
			return paths, eris.Wrap(err, "pipeline: write xlsx snapshot")
		}
		paths = append(paths, cfg.XLSXPath)
	}
	return paths, nil
}
