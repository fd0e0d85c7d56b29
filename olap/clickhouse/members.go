package clickhouse

import (
	"fmt"
	"strings"
)

// Member IDs are the dimension ID followed by the member's value on every level down to its
// own, each in brackets, with ']' doubled inside values:
//
//	[Zone].[France].[Bretagne]
func memberID(dimension string, values []string) string {
	var id strings.Builder
	id.WriteString(dimension)
	for _, value := range values {
		id.WriteString(".[")
		id.WriteString(strings.ReplaceAll(value, "]", "]]"))
		id.WriteByte(']')
	}
	return id.String()
}

// parseMemberID returns the level values of a member of the given dimension.
func parseMemberID(dimension string, id string) ([]string, error) {
	rest, ok := strings.CutPrefix(id, dimension)
	if !ok {
		return nil, fmt.Errorf("member '%s' is not part of dimension '%s'", id, dimension)
	}

	var values []string
	for rest != "" {
		if !strings.HasPrefix(rest, ".[") {
			return nil, fmt.Errorf("malformed member ID '%s'", id)
		}
		rest = rest[2:]

		var value strings.Builder
		closed := false
		for len(rest) > 0 {
			if rest[0] != ']' {
				value.WriteByte(rest[0])
				rest = rest[1:]
				continue
			}
			if strings.HasPrefix(rest, "]]") {
				value.WriteByte(']')
				rest = rest[2:]
				continue
			}
			rest = rest[1:]
			closed = true
			break
		}
		if !closed {
			return nil, fmt.Errorf("unterminated value in member ID '%s'", id)
		}

		values = append(values, value.String())
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("member ID '%s' has no level values", id)
	}
	return values, nil
}
