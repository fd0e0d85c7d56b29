// Package metadata caches the metadata tree of a query API (schemas > cubes > dimensions >
// hierarchies > levels > properties), fetching each node on first use.
package metadata

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"hermannm.dev/cubes/metrics"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

type Cache struct {
	api olap.QueryAPI

	lock           sync.RWMutex
	flight         singleflight.Group
	schemas        []*schemaNode
	schemasFetched bool
	members        map[string]olap.Members
}

type schemaNode struct {
	schema       olap.Schema
	cubes        []*cubeNode
	cubesFetched bool
}

type cubeNode struct {
	cube              olap.Cube
	dimensions        []*dimensionNode
	dimensionsFetched bool
}

type dimensionNode struct {
	dimension          olap.DimensionInfo
	hierarchies        []*hierarchyNode
	hierarchiesFetched bool
}

type hierarchyNode struct {
	hierarchy olap.Hierarchy
	// Position in the slice is the level index. Level IDs are only used to address the
	// query API, and never leave the cache.
	levels        []olap.Level
	levelsFetched bool
}

// HierarchyPath addresses a hierarchy in the metadata tree.
type HierarchyPath struct {
	Schema    string
	Cube      string
	Dimension string
	Hierarchy string
}

func (path HierarchyPath) explorePath() []string {
	return []string{path.Schema, path.Cube, path.Dimension, path.Hierarchy}
}

func (path HierarchyPath) String() string {
	return strings.Join(path.explorePath(), " > ")
}

func NewCache(api olap.QueryAPI) *Cache {
	return &Cache{api: api, members: make(map[string]olap.Members)}
}

// Clear drops everything cached, so that the next lookups fetch again.
func (cache *Cache) Clear() {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	cache.schemas = nil
	cache.schemasFetched = false
	cache.members = make(map[string]olap.Members)
}

// ensure calls fetch unless isCached reports the data as present. Concurrent calls with
// the same key share a single fetch. isCached is called with the read lock held.
func (cache *Cache) ensure(
	ctx context.Context,
	key string,
	isCached func() bool,
	fetch func(ctx context.Context) error,
) error {
	cached := func() bool {
		cache.lock.RLock()
		defer cache.lock.RUnlock()
		return isCached()
	}

	if cached() {
		metrics.MetadataLookups.WithLabelValues("hit").Inc()
		return nil
	}

	_, err, _ := cache.flight.Do(key, func() (any, error) {
		// Another fetch for the key may have completed since the check above.
		if cached() {
			return nil, nil
		}
		metrics.MetadataLookups.WithLabelValues("miss").Inc()
		return nil, fetch(ctx)
	})
	return err
}

func (cache *Cache) explore(
	ctx context.Context,
	request olap.ExploreRequest,
) (json.RawMessage, error) {
	if cache.api == nil {
		return nil, olap.NewError(olap.ErrorKindQueryAPINotProvided, "no query API configured")
	}

	log.Debug("exploring metadata", slog.Any("path", request.Path))

	reply, err := cache.api.Explore(ctx, request)
	if err != nil {
		metrics.ExploreRequests.WithLabelValues("TRANSPORT_ERROR").Inc()
		return nil, wrap.Error(err, "explore request failed")
	}
	metrics.ExploreRequests.WithLabelValues(reply.Error.String()).Inc()

	if err := olap.CheckReply(reply); err != nil {
		return nil, wrap.Errorf(err, "explore of [%s] failed", strings.Join(request.Path, ", "))
	}

	return reply.Data, nil
}

func (cache *Cache) exploreEntries(
	ctx context.Context,
	request olap.ExploreRequest,
) (ids []string, entries []olap.ExploreEntry, err error) {
	data, err := cache.explore(ctx, request)
	if err != nil {
		return nil, nil, err
	}

	objectEntries, err := olap.DecodeOrderedObject(data)
	if err != nil {
		return nil, nil, olap.NewError(
			olap.ErrorKindIllegalAPIResponse, "explore reply is not an object: %v", err,
		)
	}

	ids = make([]string, 0, len(objectEntries))
	entries = make([]olap.ExploreEntry, 0, len(objectEntries))
	for _, objectEntry := range objectEntries {
		var entry olap.ExploreEntry
		if err := json.Unmarshal(objectEntry.Value, &entry); err != nil {
			return nil, nil, olap.NewError(
				olap.ErrorKindIllegalAPIResponse,
				"invalid explore entry '%s': %v", objectEntry.Key, err,
			)
		}
		ids = append(ids, objectEntry.Key)
		entries = append(entries, entry)
	}

	return ids, entries, nil
}

// Lookup helpers below must be called with the lock held.

func (cache *Cache) schemaNode(schema string) *schemaNode {
	for _, node := range cache.schemas {
		if node.schema.ID == schema {
			return node
		}
	}
	return nil
}

func (cache *Cache) cubeNode(schema string, cube string) *cubeNode {
	schemaNode := cache.schemaNode(schema)
	if schemaNode == nil {
		return nil
	}
	for _, node := range schemaNode.cubes {
		if node.cube.ID == cube {
			return node
		}
	}
	return nil
}

func (cache *Cache) dimensionNode(schema string, cube string, dimension string) *dimensionNode {
	cubeNode := cache.cubeNode(schema, cube)
	if cubeNode == nil {
		return nil
	}
	for _, node := range cubeNode.dimensions {
		if node.dimension.ID == dimension {
			return node
		}
	}
	return nil
}

func (cache *Cache) hierarchyNode(path HierarchyPath) *hierarchyNode {
	dimensionNode := cache.dimensionNode(path.Schema, path.Cube, path.Dimension)
	if dimensionNode == nil {
		return nil
	}
	for _, node := range dimensionNode.hierarchies {
		if node.hierarchy.ID == path.Hierarchy {
			return node
		}
	}
	return nil
}
