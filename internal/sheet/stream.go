package sheet

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// streamCells reads CSV from r and sends every trimmed, non-empty cell to the
// returned channel. Rows may have any number of fields. Both channels are
// closed when reading completes; at most one error is sent.
func streamCells(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	cellCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(cellCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "sheet: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "sheet: read row")
				return
			}

			for _, field := range record {
				cell := strings.TrimSpace(field)
				if cell == "" {
					continue
				}
				select {
				case cellCh <- cell:
				case <-ctx.Done():
					errCh <- eris.Wrap(ctx.Err(), "sheet: context cancelled")
					return
				}
			}
		}
	}()

	return cellCh, errCh
}
