package olap

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"hermannm.dev/wrap"
)

// Member is one member of a level. On the wire, properties sit next to the caption:
//
//	{"caption": "France", "geom": "MULTIPOLYGON(...)"}
type Member struct {
	Caption    string
	Properties map[string]any
}

func (member Member) MarshalJSON() ([]byte, error) {
	object := make(map[string]any, len(member.Properties)+1)
	for key, value := range member.Properties {
		object[key] = value
	}
	object["caption"] = member.Caption
	return json.Marshal(object)
}

func (member *Member) UnmarshalJSON(data []byte) error {
	var object map[string]any
	if err := json.Unmarshal(data, &object); err != nil {
		return wrap.Error(err, "failed to decode member")
	}

	caption, _ := object["caption"].(string)
	delete(object, "caption")
	if len(object) == 0 {
		object = nil
	}

	*member = Member{Caption: caption, Properties: object}
	return nil
}

// Members maps member IDs (unique names such as "[Time].[2000].[Q1]") to members.
type Members map[string]Member

// IDs returns the member IDs in ascending order.
func (members Members) IDs() []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns a copy of the set where every member's properties are copied as well.
func (members Members) Clone() Members {
	clone := make(Members, len(members))
	for id, member := range members {
		clone[id] = member.Clone()
	}
	return clone
}

func (member Member) Clone() Member {
	if member.Properties == nil {
		return member
	}

	properties := make(map[string]any, len(member.Properties))
	for key, value := range member.Properties {
		properties[key] = clonePropertyValue(value)
	}
	return Member{Caption: member.Caption, Properties: properties}
}

func clonePropertyValue(value any) any {
	switch value := value.(type) {
	case *geojson.Geometry:
		if value == nil {
			return value
		}
		geometry := *value
		if value.Coordinates != nil {
			geometry.Coordinates = orb.Clone(value.Coordinates)
		}
		if value.Geometries != nil {
			geometry.Geometries = make([]*geojson.Geometry, len(value.Geometries))
			for i, child := range value.Geometries {
				geometry.Geometries[i] = clonePropertyValue(child).(*geojson.Geometry)
			}
		}
		return &geometry
	case map[string]any:
		object := make(map[string]any, len(value))
		for key, field := range value {
			object[key] = clonePropertyValue(field)
		}
		return object
	case []any:
		list := make([]any, len(value))
		for i, item := range value {
			list[i] = clonePropertyValue(item)
		}
		return list
	default:
		return value
	}
}

// Union returns a new member set containing the members of both sets.
func (members Members) Union(other Members) Members {
	union := make(Members, len(members)+len(other))
	maps.Copy(union, members)
	maps.Copy(union, other)
	return union
}

func (members Members) Contains(id string) bool {
	_, ok := members[id]
	return ok
}

// Row is one row of an execute reply, keyed by dimension ID (whose value is a member ID)
// and by measure ID (whose value is a number).
//
//	{"[Time]": "[Time].[All Times].[2000]", "[Measures].[Goods Quantity]": 2487192}
type Row map[string]any

func (row Row) Member(dimension string) (member string, ok bool) {
	member, ok = row[dimension].(string)
	return member, ok
}

func (row Row) Value(measure string) float64 {
	switch value := row[measure].(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int64:
		return float64(value)
	case int:
		return float64(value)
	case json.Number:
		number, _ := value.Float64()
		return number
	default:
		return 0
	}
}
