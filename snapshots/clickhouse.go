package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/cubes/olap/clickhouse"
	"hermannm.dev/wrap"
)

// ClickHouseStore keeps snapshots in a ClickHouse table, with the state as a JSON string.
type ClickHouseStore struct {
	conn  driver.Conn
	table string
}

const (
	snapshotID        = "id"
	snapshotName      = "name"
	snapshotCreatedAt = "created_at"
	snapshotState     = "state"
)

func NewClickHouseStore(conn driver.Conn, table string) (*ClickHouseStore, error) {
	if err := clickhouse.ValidateIdentifier(table); err != nil {
		return nil, wrap.Error(err, "invalid snapshots table name")
	}
	return &ClickHouseStore{conn: conn, table: table}, nil
}

func (store *ClickHouseStore) CreateTable(ctx context.Context) error {
	var query clickhouse.QueryBuilder
	query.WriteString("CREATE TABLE IF NOT EXISTS ")
	query.WriteIdentifier(store.table)
	query.WriteString(" (")

	query.WriteIdentifier(snapshotID)
	query.WriteString(" String, ")

	query.WriteIdentifier(snapshotName)
	query.WriteString(" String, ")

	query.WriteIdentifier(snapshotCreatedAt)
	query.WriteString(" DateTime64(3), ")

	query.WriteIdentifier(snapshotState)
	query.WriteString(" String)")

	query.WriteString(" ENGINE = MergeTree()")
	query.WriteString(" PRIMARY KEY (")
	query.WriteIdentifier(snapshotID)
	query.WriteByte(')')

	if err := store.conn.Exec(ctx, query.String()); err != nil {
		return wrap.Error(err, "failed to create snapshots table")
	}
	return nil
}

func (store *ClickHouseStore) Save(ctx context.Context, snapshot Snapshot) error {
	state, err := json.Marshal(snapshot.State)
	if err != nil {
		return wrap.Error(err, "failed to encode snapshot state")
	}

	var query clickhouse.QueryBuilder
	query.WriteString("INSERT INTO ")
	query.WriteIdentifier(store.table)
	query.WriteString(" VALUES (?, ?, ?, ?)")

	shouldWaitForResult := true
	if err := store.conn.AsyncInsert(
		ctx,
		query.String(),
		shouldWaitForResult,
		snapshot.ID,
		snapshot.Name,
		snapshot.CreatedAt,
		string(state),
	); err != nil {
		return wrap.Errorf(err, "failed to insert snapshot '%s'", snapshot.ID)
	}
	return nil
}

func (store *ClickHouseStore) Load(ctx context.Context, id string) (Snapshot, error) {
	var query clickhouse.QueryBuilder
	query.WriteString("SELECT ")
	query.WriteIdentifiers([]string{snapshotName, snapshotCreatedAt, snapshotState})
	query.WriteString(" FROM ")
	query.WriteIdentifier(store.table)
	query.WriteString(" WHERE ")
	query.WriteIdentifier(snapshotID)
	query.WriteString(" = ")
	query.WriteArg(id)
	query.WriteString(" LIMIT 1")

	snapshot := Snapshot{ID: id}
	var state string
	if err := store.conn.QueryRow(ctx, query.String(), query.Args()...).Scan(
		&snapshot.Name, &snapshot.CreatedAt, &state,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, NotFoundError{ID: id}
		}
		return Snapshot{}, wrap.Errorf(err, "failed to load snapshot '%s'", id)
	}

	if err := json.Unmarshal([]byte(state), &snapshot.State); err != nil {
		return Snapshot{}, wrap.Errorf(err, "failed to decode state of snapshot '%s'", id)
	}
	snapshot.CreatedAt = snapshot.CreatedAt.UTC()
	return snapshot, nil
}

func (store *ClickHouseStore) Delete(ctx context.Context, id string) error {
	if _, err := store.Load(ctx, id); err != nil {
		return err
	}

	var query clickhouse.QueryBuilder
	query.WriteString("DELETE FROM ")
	query.WriteIdentifier(store.table)
	query.WriteString(" WHERE ")
	query.WriteIdentifier(snapshotID)
	query.WriteString(" = ")
	query.WriteArg(id)

	if err := store.conn.Exec(ctx, query.String(), query.Args()...); err != nil {
		return wrap.Errorf(err, "failed to delete snapshot '%s'", id)
	}
	return nil
}

func (store *ClickHouseStore) List(ctx context.Context) ([]Summary, error) {
	var query clickhouse.QueryBuilder
	query.WriteString("SELECT ")
	query.WriteIdentifiers([]string{snapshotID, snapshotName, snapshotCreatedAt})
	query.WriteString(" FROM ")
	query.WriteIdentifier(store.table)
	query.WriteString(" ORDER BY ")
	query.WriteIdentifier(snapshotCreatedAt)
	query.WriteString(" DESC")

	rows, err := store.conn.Query(ctx, query.String())
	if err != nil {
		return nil, wrap.Error(err, "failed to list snapshots")
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var summary Summary
		var createdAt time.Time
		if err := rows.Scan(&summary.ID, &summary.Name, &createdAt); err != nil {
			return nil, wrap.Error(err, "failed to scan snapshot row")
		}
		summary.CreatedAt = createdAt.UTC()
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to read snapshot rows")
	}

	return summaries, nil
}
