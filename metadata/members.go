package metadata

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"

	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

type MembersRequest struct {
	Path  HierarchyPath
	Level int

	WithProperties bool

	// When set, the descendants of Parent (a member of Level) are returned instead of the
	// members of the level. DescendingLevel is how many levels below Level the descendants
	// are, 1 if unset.
	Parent          string
	DescendingLevel int
}

// Members returns the members of a level, or the descendants of a member. Geometry
// properties of members fetched with properties are converted from WKT to GeoJSON.
//
// Result sets are cached per request; the returned set and its members' properties may be
// modified by the caller.
func (cache *Cache) Members(ctx context.Context, request MembersRequest) (olap.Members, error) {
	level, err := cache.level(ctx, request.Path, request.Level)
	if err != nil {
		return nil, err
	}

	exploreRequest := olap.ExploreRequest{
		Path:           append(request.Path.explorePath(), level.ID),
		WithProperties: request.WithProperties,
	}
	if request.Parent != "" {
		exploreRequest.Path = append(exploreRequest.Path, request.Parent)
		exploreRequest.DescendingLevel = request.DescendingLevel
		if exploreRequest.DescendingLevel == 0 {
			exploreRequest.DescendingLevel = 1
		}
	}

	key := flightKey(
		"members",
		append(
			slices.Clone(exploreRequest.Path),
			strconv.FormatBool(request.WithProperties),
			strconv.Itoa(exploreRequest.DescendingLevel),
		)...,
	)

	if err := cache.ensure(
		ctx,
		key,
		func() bool {
			_, ok := cache.members[key]
			return ok
		},
		func(ctx context.Context) error {
			members, err := cache.fetchMembers(ctx, request.Path, exploreRequest)
			if err != nil {
				return err
			}

			cache.lock.Lock()
			defer cache.lock.Unlock()
			cache.members[key] = members
			return nil
		},
	); err != nil {
		return nil, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()
	return cache.members[key].Clone(), nil
}

// MembersInfo fetches the given members of a level. It always asks the query API, as it is
// used to validate member IDs stored outside of this process.
func (cache *Cache) MembersInfo(
	ctx context.Context,
	path HierarchyPath,
	levelIndex int,
	memberIDs []string,
	withProperties bool,
) (olap.Members, error) {
	level, err := cache.level(ctx, path, levelIndex)
	if err != nil {
		return nil, err
	}

	if len(memberIDs) == 0 {
		return olap.Members{}, nil
	}

	return cache.fetchMembers(ctx, path, olap.ExploreRequest{
		Path:            append(path.explorePath(), level.ID),
		Members:         memberIDs,
		WithProperties:  withProperties,
		DescendingLevel: 0,
	})
}

func (cache *Cache) fetchMembers(
	ctx context.Context,
	path HierarchyPath,
	request olap.ExploreRequest,
) (olap.Members, error) {
	data, err := cache.explore(ctx, request)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to get members of hierarchy '%s'", path.Hierarchy)
	}

	var members olap.Members
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, olap.NewError(
			olap.ErrorKindIllegalAPIResponse,
			"invalid members of hierarchy '%s': %v", path.Hierarchy, err,
		)
	}
	if members == nil {
		members = olap.Members{}
	}

	if request.WithProperties {
		property, found, err := cache.GeoProperty(ctx, path)
		if err != nil {
			return nil, err
		}
		if found {
			if err := convertGeometries(members, property.ID); err != nil {
				return nil, wrap.Errorf(
					err, "failed to convert geometry property '%s'", property.ID,
				)
			}
		}
	}

	return members, nil
}
