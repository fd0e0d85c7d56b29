// Package csv reads uploaded fact rows, deducing the field delimiter of the file.
package csv

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"hermannm.dev/wrap"
)

// Reader reads CSV rows with a field delimiter deduced from the first lines of the file.
type Reader struct {
	inner      *csv.Reader
	delimiter  rune
	currentRow int
}

const linesToCheckForDelimiter = 20

func NewReader(csvFile io.ReadSeeker, skipHeaderRow bool) (*Reader, error) {
	delimiter, err := DeduceFieldDelimiter(csvFile, linesToCheckForDelimiter, DefaultDelimitersToCheck)
	if err != nil {
		return nil, err
	}

	inner := csv.NewReader(csvFile)
	inner.ReuseRecord = true
	inner.Comma = delimiter
	inner.TrimLeadingSpace = delimiter != ' '

	reader := &Reader{inner: inner, delimiter: delimiter, currentRow: 0}

	if skipHeaderRow {
		if _, err := reader.ReadHeaderRow(); err != nil {
			return nil, wrap.Error(err, "failed to skip CSV header row")
		}
	}

	return reader, nil
}

func (reader *Reader) Delimiter() rune {
	return reader.delimiter
}

// Implements clickhouse.FactSource. The returned row is only valid until the next call.
func (reader *Reader) ReadRow() (row []string, rowNumber int, done bool, err error) {
	reader.currentRow++

	row, err = reader.inner.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, true, nil
		} else {
			return nil, 0, false, wrap.Errorf(err, "failed to parse CSV row %d", reader.currentRow)
		}
	}

	return row, reader.currentRow, false, nil
}

const byteOrderMark = "\uFEFF"

// ReadHeaderRow returns the column names of the first row, trimmed of spaces.
func (reader *Reader) ReadHeaderRow() (row []string, err error) {
	if reader.currentRow != 0 {
		return nil, errors.New("tried to read header row after reading previous rows")
	}

	row, _, done, err := reader.ReadRow()
	if err != nil {
		return nil, err
	}
	if done {
		return nil, errors.New("csv file ended before header row")
	}

	header := make([]string, len(row))
	for i, field := range row {
		if i == 0 {
			field = strings.TrimPrefix(field, byteOrderMark)
		}
		header[i] = strings.TrimSpace(field)
	}
	return header, nil
}
