// Package clickhouse implements a multidimensional query backend over ClickHouse fact
// tables, described by YAML cube definitions.
package clickhouse

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/cubes/config"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

// Backend implements olap.QueryAPI for ClickHouse.
type Backend struct {
	conn        driver.Conn
	definitions Definitions

	lock  sync.Mutex
	state olap.QueryState
}

func NewBackend(conn driver.Conn, definitions Definitions) *Backend {
	return &Backend{conn: conn, definitions: definitions}
}

// Connect opens a ClickHouse connection with the given config, and loads the cube
// definitions file it names.
func Connect(config config.ClickHouse) (*Backend, error) {
	definitions, err := LoadDefinitions(config.CubeDefinitionsFile)
	if err != nil {
		return nil, err
	}

	conn, err := Open(config)
	if err != nil {
		return nil, err
	}

	return NewBackend(conn, definitions), nil
}

func Open(config config.ClickHouse) (driver.Conn, error) {
	// Options docs: https://clickhouse.com/docs/en/integrations/go#connection-settings
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.Address},
		Auth: clickhouse.Auth{
			Database: config.DatabaseName,
			Username: config.Username,
			Password: config.Password,
		},
		Debug: config.Debug,
		Debugf: func(format string, v ...any) {
			fmt.Printf(format+"\n", v...)
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, wrap.Error(err, "failed to connect to ClickHouse")
	}

	return conn, nil
}

// Fork returns a backend over the same connection and definitions, with its own query
// state.
func (backend *Backend) Fork() *Backend {
	return NewBackend(backend.conn, backend.definitions)
}

func (backend *Backend) Conn() driver.Conn {
	return backend.conn
}

func (backend *Backend) Definitions() Definitions {
	return backend.definitions
}

func (backend *Backend) Ping(ctx context.Context) error {
	return backend.conn.Ping(ctx)
}

func (backend *Backend) Drill(cube string) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state.Drill(cube)
}

func (backend *Backend) Push(measure string) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state.Push(measure)
}

func (backend *Backend) Pull(measure string) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state.Pull(measure)
}

func (backend *Backend) Slice(hierarchy string, members []string, isRange bool) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state.Slice(hierarchy, members, isRange)
}

func (backend *Backend) Dice(hierarchies []string) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state.Dice(hierarchies)
}

func (backend *Backend) Project(hierarchy string) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state.Project(hierarchy)
}

func (backend *Backend) Filter(hierarchy string, members []string, isRange bool) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state.Filter(hierarchy, members, isRange)
}

func (backend *Backend) Clear() {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	backend.state = olap.QueryState{}
}

// errorReply turns domain errors into replies, the way a remote query API reports them.
func errorReply(err error) (olap.Reply, error) {
	kind, _ := olap.KindOf(err)
	switch kind {
	case olap.ErrorKindSchemaNotInDatabase,
		olap.ErrorKindCubeNotInDatabase,
		olap.ErrorKindDimensionNotInDatabase,
		olap.ErrorKindHierarchyNotInDatabase,
		olap.ErrorKindLevelNotInDatabase,
		olap.ErrorKindQueryAPIBadRequest,
		olap.ErrorKindNoCubeDrilled:
		return olap.ErrorReply(olap.ReplyStatusBadRequest, err.Error()), nil
	case olap.ErrorKindQueryAPINotSupported:
		return olap.ErrorReply(olap.ReplyStatusNotSupported, err.Error()), nil
	default:
		return olap.ErrorReply(olap.ReplyStatusServerError, err.Error()), nil
	}
}
