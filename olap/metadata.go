package olap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"hermannm.dev/wrap"
)

type Schema struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
}

type Cube struct {
	ID          string `json:"id"`
	Caption     string `json:"caption"`
	Description string `json:"description,omitempty"`
}

type Measure struct {
	ID          string `json:"id"`
	Caption     string `json:"caption"`
	Description string `json:"description,omitempty"`
}

type DimensionInfo struct {
	ID          string        `json:"id"`
	Caption     string        `json:"caption"`
	Description string        `json:"description,omitempty"`
	Type        DimensionType `json:"type"`
}

type Hierarchy struct {
	ID          string `json:"id"`
	Caption     string `json:"caption"`
	Description string `json:"description,omitempty"`
}

type Level struct {
	ID          string     `json:"id"`
	Caption     string     `json:"caption"`
	Description string     `json:"description,omitempty"`
	Properties  Properties `json:"list-properties"`
}

type Property struct {
	ID          string       `json:"id"`
	Caption     string       `json:"caption"`
	Description string       `json:"description,omitempty"`
	Type        PropertyType `json:"type"`
}

// ExploreEntry is the value of one key in an explore reply for schemas, cubes, dimensions
// and hierarchies. Type is only set for dimensions.
type ExploreEntry struct {
	Caption     string        `json:"caption"`
	Description string        `json:"description,omitempty"`
	Type        DimensionType `json:"type,omitempty"`
}

// Properties keeps the declaration order of level properties, and is encoded as a JSON
// object keyed by property ID.
type Properties []Property

type propertyEntry struct {
	Caption     string       `json:"caption"`
	Description string       `json:"description,omitempty"`
	Type        PropertyType `json:"type"`
}

func (properties Properties) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for i, property := range properties {
		if i != 0 {
			buffer.WriteByte(',')
		}

		key, err := json.Marshal(property.ID)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(propertyEntry{
			Caption:     property.Caption,
			Description: property.Description,
			Type:        property.Type,
		})
		if err != nil {
			return nil, wrap.Errorf(err, "failed to encode property '%s'", property.ID)
		}

		buffer.Write(key)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

func (properties *Properties) UnmarshalJSON(data []byte) error {
	entries, err := DecodeOrderedObject(data)
	if err != nil {
		return err
	}

	decoded := make(Properties, 0, len(entries))
	for _, entry := range entries {
		var property propertyEntry
		if err := json.Unmarshal(entry.Value, &property); err != nil {
			return wrap.Errorf(err, "failed to decode property '%s'", entry.Key)
		}
		decoded = append(decoded, Property{
			ID:          entry.Key,
			Caption:     property.Caption,
			Description: property.Description,
			Type:        property.Type,
		})
	}

	*properties = decoded
	return nil
}

type KeyedValue struct {
	Key   string
	Value json.RawMessage
}

// DecodeOrderedObject decodes a JSON object into its key/value pairs in document order.
// Explore replies are keyed objects, and the first key is significant (e.g. the first
// hierarchy of a dimension is the default one).
func DecodeOrderedObject(data []byte) ([]KeyedValue, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return nil, wrap.Error(err, "failed to read start of JSON object")
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got '%v'", token)
	}

	var entries []KeyedValue
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, wrap.Error(err, "failed to read JSON object key")
		}
		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("expected JSON object key, got '%v'", token)
		}

		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, wrap.Errorf(err, "failed to read value of key '%s'", key)
		}

		entries = append(entries, KeyedValue{Key: key, Value: value})
	}

	if _, err := decoder.Token(); err != nil {
		return nil, wrap.Error(err, "failed to read end of JSON object")
	}

	return entries, nil
}

// EncodeOrderedObject is the inverse of DecodeOrderedObject.
func EncodeOrderedObject(entries []KeyedValue) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for i, entry := range entries {
		if i != 0 {
			buffer.WriteByte(',')
		}
		key, err := json.Marshal(entry.Key)
		if err != nil {
			return nil, err
		}
		if len(entry.Value) == 0 {
			return nil, errors.New("missing value for JSON object key " + string(key))
		}
		buffer.Write(key)
		buffer.WriteByte(':')
		buffer.Write(entry.Value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}
