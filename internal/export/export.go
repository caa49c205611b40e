// Package export writes the end-of-run snapshot of enriched engagers.
package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/engager-cli/internal/model"
)

// Columns is the fixed snapshot column set, matching the Clay field names.
var Columns = []string{
	"authorId",
	"authorName",
	"authorUrl",
	"engagement_type",
	"reaction_type",
	"comment_text",
	"source_activity_id",
	"enriched",
	"firstName",
	"lastName",
	"headline",
	"location",
	"linkedInUrl",
	"summary",
	"followerCount",
	"openToWork",
	"currentTitle",
	"currentCompany",
}

// Row maps a record onto Columns. Profile columns are blank for records
// that were not enriched.
func Row(r model.EnrichedRecord) []string {
	row := []string{
		r.PersonID,
		r.PersonName,
		r.ProfileURL,
		string(r.EngagementType),
		r.ReactionKind,
		r.CommentText,
		r.SourcePostID,
		strconv.FormatBool(r.Enriched),
	}
	if r.Profile == nil {
		return append(row, make([]string, len(Columns)-len(row))...)
	}
	p := r.Profile
	return append(row,
		p.FirstName,
		p.LastName,
		p.Headline,
		p.Location,
		p.LinkedInURL,
		p.Summary,
		strconv.Itoa(p.FollowerCount),
		strconv.FormatBool(p.OpenToWork),
		p.CurrentTitle,
		p.CurrentCompany,
	)
}

// WriteCSV writes records to path. The header is always written, so an
// empty run leaves a header-only file.
func WriteCSV(path string, records []model.EnrichedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "csv export: create file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return eris.Wrap(err, "csv export: write header")
	}
	for _, r := range records {
		if err := w.Write(Row(r)); err != nil {
			return eris.Wrap(err, "csv export: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "csv export: flush")
	}
	return eris.Wrap(f.Close(), "csv export: close file")
}

// WriteXLSX writes the same table as WriteCSV to an Excel workbook.
func WriteXLSX(path string, records []model.EnrichedRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Engagers")
	if err != nil {
		return eris.Wrap(err, "xlsx export: add sheet")
	}

	writeRow := func(values []string) {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	writeRow(Columns)
	for _, r := range records {
		writeRow(Row(r))
	}

	return eris.Wrap(f.Save(path), "xlsx export: save")
}
