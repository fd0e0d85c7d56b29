package metadata

import (
	"fmt"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

// convertGeometries replaces the WKT value of the given property on every member by the
// equivalent GeoJSON geometry. Members without the property are left as is.
func convertGeometries(members olap.Members, property string) error {
	for id, member := range members {
		value, ok := member.Properties[property]
		if !ok || value == nil {
			continue
		}

		geometry, err := wktToGeoJSON(value)
		if err != nil {
			return wrap.Errorf(err, "invalid geometry for member '%s'", id)
		}

		member.Properties[property] = geometry
		members[id] = member
	}

	return nil
}

func wktToGeoJSON(value any) (*geojson.Geometry, error) {
	switch value := value.(type) {
	case *geojson.Geometry:
		return value, nil
	case string:
		geometry, err := wkt.Unmarshal(value)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse WKT")
		}
		return geojson.NewGeometry(geometry), nil
	default:
		return nil, fmt.Errorf("expected WKT string, got %T", value)
	}
}
