package fetcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/bookmap/internal/model"
)

const sniffBytes = 8192

// candidateDelimiters is also the tie-break order.
var candidateDelimiters = []rune{'|', ';', ',', '\t'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SniffDelimiter picks the candidate delimiter that occurs most often in the
// first 8 KiB of data. Ties go to the earlier candidate; no occurrences at
// all yields '|'.
func SniffDelimiter(data []byte) rune {
	sample := data
	if len(sample) > sniffBytes {
		sample = sample[:sniffBytes]
	}
	best, bestCount := candidateDelimiters[0], 0
	for _, d := range candidateDelimiters {
		n := bytes.Count(sample, []byte(string(d)))
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// DecodeText returns data as UTF-8. Input that is not valid UTF-8 is read as
// ISO-8859-1, which is what government registry dumps are usually saved in.
func DecodeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		zap.L().Debug("fetcher: latin1 decode failed, using raw bytes", zap.Error(err))
		return data
	}
	return out
}

// ReadDelimited parses delimited text. delim 0 means sniff. When the parse
// collapses to a single column but the sampled values contain ';', the data
// is parsed again with ';' and that result is kept if it has more columns.
func ReadDelimited(ctx context.Context, data []byte, delim rune) (*model.Table, error) {
	text := DecodeText(data)
	if delim == 0 {
		delim = SniffDelimiter(text)
	}

	headers, rows, err := readRows(ctx, text, delim)
	if err != nil {
		return nil, err
	}

	if len(headers) == 1 && delim != ';' && sampleHasSemicolon(rows, 5) {
		h2, r2, err2 := readRows(ctx, text, ';')
		if err2 == nil && len(h2) > 1 {
			zap.L().Info("fetcher: single column parse, retried with ';'",
				zap.String("first_delimiter", string(delim)),
				zap.Int("columns", len(h2)),
			)
			headers, rows, delim = h2, r2, ';'
		}
	}

	tbl := model.NewTable("", headers, rows)
	tbl.Delimiter = delim
	return tbl, nil
}

func sampleHasSemicolon(rows [][]string, n int) bool {
	for i, row := range rows {
		if i >= n {
			break
		}
		if len(row) > 0 && strings.Contains(row[0], ";") {
			return true
		}
	}
	return false
}

// readRows returns the header and data rows. Lines that fail to parse are
// skipped; blank header cells get positional names.
func readRows(ctx context.Context, text []byte, delim rune) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var (
		headers []string
		rows    [][]string
		skipped int
	)
	for {
		if ctx.Err() != nil {
			return nil, nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, nil, eris.Wrap(err, "csv: read row")
		}

		if headers == nil {
			headers = cleanHeaders(record)
			continue
		}
		if isBlankRow(record) {
			continue
		}
		rows = append(rows, record)
	}

	if headers == nil {
		return nil, nil, eris.New("csv: empty table")
	}
	if skipped > 0 {
		zap.L().Warn("csv: skipped malformed lines", zap.Int("skipped", skipped))
	}
	return headers, rows, nil
}

func cleanHeaders(record []string) []string {
	headers := make([]string, len(record))
	seen := make(map[string]int, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = h + "." + strconv.Itoa(n)
		} else {
			seen[h] = 1
		}
		headers[i] = h
	}
	return headers
}

func isBlankRow(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
