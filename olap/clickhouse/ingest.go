package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// FactSource provides fact table rows, with a header row naming the columns. Implemented by
// csv.Reader.
type FactSource interface {
	ReadHeaderRow() (row []string, err error)
	ReadRow() (row []string, rowNumber int, done bool, err error)
}

// InvalidFactsError is returned by InsertFacts when the source does not fit the fact table.
// Rows sent in previous batches stay inserted.
type InvalidFactsError struct {
	Err error
}

func (err InvalidFactsError) Error() string {
	return err.Err.Error()
}

func (err InvalidFactsError) Unwrap() error {
	return err.Err
}

// CreateFactTable creates the fact table of the cube, if it does not already exist. Level
// and property columns are strings, measure columns are floats.
func (backend *Backend) CreateFactTable(ctx context.Context, cubeID string) error {
	cube, err := backend.definitions.cubeByID(cubeID)
	if err != nil {
		return err
	}

	var query QueryBuilder
	query.WriteString("CREATE TABLE IF NOT EXISTS ")
	query.WriteIdentifier(cube.Table)
	query.WriteString(" (`id` UUID")

	for _, column := range cube.Columns() {
		query.WriteString(", ")
		query.WriteIdentifier(column)
		if cube.isMeasureColumn(column) {
			query.WriteString(" Float64")
		} else {
			query.WriteString(" String")
		}
	}

	query.WriteByte(')')
	query.WriteString(" ENGINE = MergeTree()")
	query.WriteString(" PRIMARY KEY (id)")

	if err := backend.conn.Exec(ctx, query.String()); err != nil {
		return wrap.Errorf(err, "ClickHouse table creation query failed for table '%s'", cube.Table)
	}

	return nil
}

// ClickHouse recommends keeping batch inserts between 10,000 and 100,000 rows:
// https://clickhouse.com/docs/en/cloud/bestpractices/bulk-inserts
const BatchInsertSize = 10000

// InsertFacts reads every row of the source into the fact table of the cube, and returns
// the number of rows inserted. The header row of the source must name every column of the
// fact table; other columns are ignored.
func (backend *Backend) InsertFacts(
	ctx context.Context,
	cubeID string,
	source FactSource,
) (insertedRows int, err error) {
	cube, err := backend.definitions.cubeByID(cubeID)
	if err != nil {
		return 0, err
	}

	header, err := source.ReadHeaderRow()
	if err != nil {
		return 0, InvalidFactsError{Err: wrap.Error(err, "failed to read header row")}
	}

	columns := cube.Columns()
	sourceIndexes, err := mapHeaderColumns(header, columns)
	if err != nil {
		return 0, InvalidFactsError{Err: err}
	}
	isMeasure := make([]bool, len(columns))
	for i, column := range columns {
		isMeasure[i] = cube.isMeasureColumn(column)
	}

	var query QueryBuilder
	query.WriteString("INSERT INTO ")
	query.WriteIdentifier(cube.Table)
	query.WriteString(" (`id`, ")
	query.WriteIdentifiers(columns)
	query.WriteByte(')')
	queryString := query.String()

	converter := factConverter{columns: columns, sourceIndexes: sourceIndexes, isMeasure: isMeasure}

	allRowsSent := false
	for !allRowsSent {
		batch, err := backend.conn.PrepareBatch(ctx, queryString)
		if err != nil {
			return insertedRows, wrap.Error(err, "failed to prepare batch data insert")
		}

		batchRows := 0
		for range BatchInsertSize {
			rawRow, rowNumber, done, err := source.ReadRow()
			if done {
				allRowsSent = true
				break
			}
			if err != nil {
				err = InvalidFactsError{Err: wrap.Error(err, "failed to read row")}
			} else {
				err = converter.append(batch, rawRow, rowNumber)
			}

			if err != nil {
				if abortErr := batch.Abort(); abortErr != nil {
					log.ErrorCause(abortErr, "failed to abort batch insert")
				}
				return insertedRows, err
			}
			batchRows++
		}

		if batchRows == 0 {
			if err := batch.Abort(); err != nil {
				return insertedRows, wrap.Error(err, "failed to abort empty batch insert")
			}
			break
		}

		if err := batch.Send(); err != nil {
			return insertedRows, wrap.Error(err, "failed to send batch insert")
		}
		insertedRows += batchRows
	}

	return insertedRows, nil
}

type factConverter struct {
	columns       []string
	sourceIndexes []int
	isMeasure     []bool
}

// append maps a source row to the insert columns, prefixed by a new row ID, and adds it to
// the batch.
func (converter factConverter) append(batch driver.Batch, rawRow []string, rowNumber int) error {
	row := make([]any, 0, len(converter.columns)+1)

	id, err := uuid.NewUUID()
	if err != nil {
		return wrap.Errorf(err, "failed to generate unique ID for row %d", rowNumber)
	}
	row = append(row, id.String())

	for i, sourceIndex := range converter.sourceIndexes {
		column := converter.columns[i]
		if sourceIndex >= len(rawRow) {
			return InvalidFactsError{
				Err: fmt.Errorf("row %d is missing column '%s'", rowNumber, column),
			}
		}
		field := rawRow[sourceIndex]

		if !converter.isMeasure[i] {
			row = append(row, field)
			continue
		}

		value, err := parseMeasureValue(field)
		if err != nil {
			return InvalidFactsError{Err: wrap.Errorf(
				err, "invalid value in column '%s' of row %d", column, rowNumber,
			)}
		}
		row = append(row, value)
	}

	if err := batch.Append(row...); err != nil {
		return wrap.Errorf(err, "failed to add row %d to batch insert", rowNumber)
	}
	return nil
}

// mapHeaderColumns returns, for each column, the index of the header field with its name.
func mapHeaderColumns(header []string, columns []string) ([]int, error) {
	indexes := make([]int, len(columns))
	var errs []error

	for i, column := range columns {
		index := slices.IndexFunc(header, func(field string) bool {
			return strings.TrimSpace(field) == column
		})
		if index == -1 {
			errs = append(errs, fmt.Errorf("missing column '%s'", column))
		}
		indexes[i] = index
	}

	if len(errs) > 0 {
		return nil, wrap.Errors("header row does not match fact table", errs...)
	}
	return indexes, nil
}

func parseMeasureValue(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, errors.New("measure value is empty")
	}
	return strconv.ParseFloat(field, 64)
}

// DropFactTable drops the fact table of the cube. Dropping a table that does not exist is
// not an error, but is reported through alreadyDropped.
func (backend *Backend) DropFactTable(
	ctx context.Context,
	cubeID string,
) (alreadyDropped bool, err error) {
	cube, err := backend.definitions.cubeByID(cubeID)
	if err != nil {
		return false, err
	}

	var query QueryBuilder
	query.WriteString("DROP TABLE ")
	query.WriteIdentifier(cube.Table)

	// See https://github.com/ClickHouse/ClickHouse/blob/bd387f6d2c30f67f2822244c0648f2169adab4d3/src/Common/ErrorCodes.cpp#L66
	const clickhouseUnknownTableErrorCode = 60

	if err := backend.conn.Exec(ctx, query.String()); err != nil {
		var clickHouseErr *proto.Exception
		if errors.As(err, &clickHouseErr) && clickHouseErr.Code == clickhouseUnknownTableErrorCode {
			return true, nil
		}

		return false, wrap.Error(err, "ClickHouse table drop query failed")
	}

	return false, nil
}
