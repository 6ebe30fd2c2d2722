package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/coords"
)

// ParseUploadRows reads an uploaded cross-match list, one `objectid ra
// dec` row per line. Malformed rows are skipped and reported by 1-based
// line number, not fatal; an upload with no valid rows at all is a
// validation error.
func ParseUploadRows(text string) ([]UploadRow, []int, error) {
	lines := strings.Split(text, "\n")
	var rows []UploadRow
	var skipped []int

	lineNo := 0
	for _, line := range lines {
		lineNo++
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		row, ok := parseUploadLine(line)
		if !ok {
			skipped = append(skipped, lineNo)
			continue
		}
		rows = append(rows, row)

		if len(rows) > MaxXMatchRows {
			return nil, nil, fmt.Errorf("%w: cross-match upload exceeds %d rows",
				domain.ErrValidation, MaxXMatchRows)
		}
	}

	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: cross-match upload has no valid rows", domain.ErrValidation)
	}
	return rows, skipped, nil
}

func parseUploadLine(line string) (UploadRow, bool) {
	fields := strings.Fields(line)

	switch len(fields) {
	case 3:
		// decimal: objectid ra dec
		ra, err1 := strconv.ParseFloat(fields[1], 64)
		dec, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 == nil && err2 == nil && coords.Valid(ra, dec) {
			return UploadRow{ObjectID: fields[0], RA: ra, Dec: dec}, true
		}
		// sexagesimal written without inner spaces: objectid hh:mm:ss dd:mm:ss
		ra, dec, err := coords.Parse(fields[1] + " " + fields[2])
		if err == nil {
			return UploadRow{ObjectID: fields[0], RA: ra, Dec: dec}, true
		}
	case 7:
		// sexagesimal split into fields: objectid hh mm ss dd mm ss
		ra, dec, err := coords.Parse(
			strings.Join(fields[1:4], ":") + " " + strings.Join(fields[4:7], ":"))
		if err == nil {
			return UploadRow{ObjectID: fields[0], RA: ra, Dec: dec}, true
		}
	}
	return UploadRow{}, false
}
