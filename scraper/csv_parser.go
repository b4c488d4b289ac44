// scraper/csv_parser.go
package scraper

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"
	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/models"
)

// ParseWatchlistCsv decodes a consolidated screening list export.
// The header must contain source, type, name, addresses, alt_names and ids;
// other columns are ignored. Short records are padded with empty fields,
// extra fields are dropped and bare quotes inside fields are kept.
func ParseWatchlistCsv(reader io.Reader) ([]models.WatchlistEntry, error) {
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	// csvutil reads the first line as the header and maps it onto the
	// `csv:"..."` tags of models.WatchlistEntry.
	decoder, err := csvutil.NewDecoder(&headerWidthReader{r: r})
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("watchlist CSV is empty: missing header")
		}
		return nil, fmt.Errorf("failed to create CSV decoder for watchlist: %w", err)
	}
	decoder.DisallowMissingColumns = true

	var entries []models.WatchlistEntry
	if err := decoder.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist CSV data: %w", err)
	}

	zap.S().Infof("Scraper: parsed %d watchlist entries from CSV", len(entries))
	return entries, nil
}

// headerWidthReader fits every record to the header's width, since csvutil
// rejects records whose length differs from the header.
type headerWidthReader struct {
	r      *csv.Reader
	width  int
	padded int
}

func (h *headerWidthReader) Read() ([]string, error) {
	record, err := h.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) && h.padded > 0 {
			zap.S().Warnf("Scraper: %d watchlist records had a different field count than the header", h.padded)
		}
		return nil, err
	}
	if h.width == 0 {
		h.width = len(record)
		return record, nil
	}
	switch {
	case len(record) < h.width:
		h.padded++
		record = append(record, make([]string, h.width-len(record))...)
	case len(record) > h.width:
		h.padded++
		record = record[:h.width]
	}
	return record, nil
}
