// Package enrich attaches LinkedIn profile data to merged engager records.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/engager-cli/internal/model"
	"github.com/sells-group/engager-cli/pkg/datagen"
)

const (
	defaultWorkers = 5

	// profilePathMarker identifies personal profile URLs (as opposed to
	// company pages or empty URLs).
	profilePathMarker = "/in/"

	// NoteNoProfileURL marks records skipped for lacking a personal profile URL.
	NoteNoProfileURL = "no personal profile URL; not enriched"
	// NoteLookupFailed marks records whose lookup errored or returned no profile.
	NoteLookupFailed = "profile lookup failed"
)

// Enricher looks up profiles with a bounded number of concurrent calls.
type Enricher struct {
	client  datagen.Client
	workers int
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithWorkers sets the number of concurrent lookups.
func WithWorkers(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an Enricher.
func New(client datagen.Client, opts ...Option) *Enricher {
	e := &Enricher{client: client, workers: defaultWorkers}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Eligible reports whether url looks like a personal profile URL.
func Eligible(url string) bool {
	return strings.Contains(url, profilePathMarker)
}

// Enrich returns exactly one EnrichedRecord per input record, in completion
// order. Lookup failures degrade the affected record to enriched=false and
// never abort the batch.
func (e *Enricher) Enrich(ctx context.Context, records []model.MergedRecord) []model.EnrichedRecord {
	if len(records) == 0 {
		return nil
	}

	var (
		mu  sync.Mutex
		out = make([]model.EnrichedRecord, 0, len(records))
	)
	emit := func(r model.EnrichedRecord) {
		mu.Lock()
		out = append(out, r)
		mu.Unlock()
	}

	var succeeded, failed, skipped atomic.Int64

	var g errgroup.Group
	g.SetLimit(e.workers)

	for _, rec := range records {
		if !Eligible(rec.ProfileURL) {
			skipped.Add(1)
			zap.L().Debug("enrich: skipping record without profile URL",
				zap.String("author_id", rec.PersonID),
				zap.String("author_name", rec.PersonName),
			)
			emit(model.EnrichedRecord{MergedRecord: rec, Note: NoteNoProfileURL})
			continue
		}

		g.Go(func() error {
			res := e.enrichOne(ctx, rec)
			if res.Enriched {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			emit(res)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("enrich: batch complete",
		zap.Int("records", len(records)),
		zap.Int64("enriched", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int64("skipped", skipped.Load()),
	)
	return out
}

// enrichOne performs a single lookup. A panic in the lookup or parsing is
// treated like any other lookup failure.
func (e *Enricher) enrichOne(ctx context.Context, rec model.MergedRecord) (res model.EnrichedRecord) {
	log := zap.L().With(zap.String("author_id", rec.PersonID), zap.String("author_name", rec.PersonName))
	res = model.EnrichedRecord{MergedRecord: rec}

	defer func() {
		if r := recover(); r != nil {
			log.Error("enrich: lookup panicked", zap.String("panic", fmt.Sprint(r)))
			res = model.EnrichedRecord{MergedRecord: rec, Note: NoteLookupFailed}
		}
	}()

	raw, err := e.client.ExecuteTool(ctx, datagen.ToolPersonData, map[string]any{"linkedin_url": rec.ProfileURL})
	if err != nil {
		log.Warn("enrich: lookup failed", zap.Error(err))
		res.Note = NoteLookupFailed
		return res
	}

	profile, err := ParseProfile(raw)
	if err != nil {
		log.Warn("enrich: unusable profile response", zap.Error(err))
		res.Note = NoteLookupFailed
		return res
	}

	res.Enriched = true
	res.Profile = profile
	return res
}

// ParseProfile normalizes a person-data response. The profile may be nested
// under "person" or be the top-level object; a "person" key that is present
// but not a non-empty object is rejected. Current title and company come from
// the first entry of positions.positionHistory.
func ParseProfile(raw json.RawMessage) (*model.Profile, error) {
	if !gjson.ValidBytes(raw) {
		return nil, eris.New("enrich: invalid profile JSON")
	}
	doc := gjson.ParseBytes(raw)
	if person := doc.Get("person"); person.Exists() {
		doc = person
	}
	if !doc.IsObject() || len(doc.Map()) == 0 {
		return nil, eris.New("enrich: empty profile")
	}

	p := &model.Profile{
		FirstName:     doc.Get("firstName").String(),
		LastName:      doc.Get("lastName").String(),
		Headline:      doc.Get("headline").String(),
		Location:      doc.Get("location").String(),
		LinkedInURL:   doc.Get("linkedInUrl").String(),
		Summary:       doc.Get("summary").String(),
		FollowerCount: int(doc.Get("followerCount").Int()),
		OpenToWork:    doc.Get("openToWork").Bool(),
	}
	if current := doc.Get("positions.positionHistory.0"); current.IsObject() {
		p.CurrentTitle = current.Get("title").String()
		p.CurrentCompany = current.Get("companyName").String()
	}
	return p, nil
}
