// Package query builds and runs data queries against a query API.
package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"hermannm.dev/cubes/metrics"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// Builder forwards query operations to a query API, keeping a mirror of the query built so
// far. Drill must be called before any other operation except Clear.
type Builder struct {
	api   olap.QueryAPI
	state olap.QueryState
}

func NewBuilder(api olap.QueryAPI) *Builder {
	return &Builder{api: api}
}

func (builder *Builder) check() error {
	if builder.api == nil {
		return olap.NewError(olap.ErrorKindQueryAPINotProvided, "no query API configured")
	}
	if builder.state.Cube == "" {
		return olap.NewError(olap.ErrorKindNoCubeDrilled, "no cube drilled before query operation")
	}
	return nil
}

func (builder *Builder) Drill(cube string) error {
	if builder.api == nil {
		return olap.NewError(olap.ErrorKindQueryAPINotProvided, "no query API configured")
	}
	builder.state.Drill(cube)
	builder.api.Drill(cube)
	return nil
}

func (builder *Builder) Push(measure string) error {
	if err := builder.check(); err != nil {
		return err
	}
	builder.state.Push(measure)
	builder.api.Push(measure)
	return nil
}

func (builder *Builder) Pull(measure string) error {
	if err := builder.check(); err != nil {
		return err
	}
	builder.state.Pull(measure)
	builder.api.Pull(measure)
	return nil
}

// Slice restricts the hierarchy to the given members, or to the range between the two
// given members if isRange is set.
func (builder *Builder) Slice(hierarchy string, members []string, isRange bool) error {
	if err := builder.check(); err != nil {
		return err
	}
	builder.state.Slice(hierarchy, members, isRange)
	builder.api.Slice(hierarchy, members, isRange)
	return nil
}

// Dice keeps the given hierarchies in the result rows.
func (builder *Builder) Dice(hierarchies ...string) error {
	if err := builder.check(); err != nil {
		return err
	}
	builder.state.Dice(hierarchies)
	builder.api.Dice(hierarchies)
	return nil
}

func (builder *Builder) Project(hierarchy string) error {
	if err := builder.check(); err != nil {
		return err
	}
	builder.state.Project(hierarchy)
	builder.api.Project(hierarchy)
	return nil
}

// Filter restricts the query to the given members of a hierarchy that is not in the rows.
func (builder *Builder) Filter(hierarchy string, members []string, isRange bool) error {
	if err := builder.check(); err != nil {
		return err
	}
	builder.state.Filter(hierarchy, members, isRange)
	builder.api.Filter(hierarchy, members, isRange)
	return nil
}

// Clear resets the query, both here and on the query API.
func (builder *Builder) Clear() error {
	if builder.api == nil {
		return olap.NewError(olap.ErrorKindQueryAPINotProvided, "no query API configured")
	}
	builder.state = olap.QueryState{}
	builder.api.Clear()
	return nil
}

// State returns a copy of the query built so far.
func (builder *Builder) State() olap.QueryState {
	return builder.state.Clone()
}

// Execute runs the query, and returns the result rows.
func (builder *Builder) Execute(ctx context.Context) ([]olap.Row, error) {
	if err := builder.check(); err != nil {
		return nil, err
	}

	log.Debug(
		"executing query",
		slog.String("cube", builder.state.Cube),
		slog.Any("measures", builder.state.Measures),
		slog.Any("diced", builder.state.DicedHierarchies()),
	)

	start := time.Now()
	reply, err := builder.api.Execute(ctx)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryExecutions.WithLabelValues("TRANSPORT_ERROR").Inc()
		return nil, wrap.Error(err, "query execution request failed")
	}
	metrics.QueryExecutions.WithLabelValues(reply.Error.String()).Inc()

	if err := olap.CheckReply(reply); err != nil {
		return nil, wrap.Errorf(err, "query on cube '%s' failed", builder.state.Cube)
	}

	var rows []olap.Row
	if err := json.Unmarshal(reply.Data, &rows); err != nil {
		return nil, olap.NewError(
			olap.ErrorKindIllegalAPIResponse, "query reply data is not a row list: %v", err,
		)
	}
	return rows, nil
}
