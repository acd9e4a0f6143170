package repository

import "encoding/json"

// JSONMapper is a ready-made eventsourcing.Mapper[V] backed by
// encoding/json. It is the default choice for projection types with no
// bespoke row encoding.
type JSONMapper[V any] struct{}

// NewJSONMapper builds a JSONMapper for V.
func NewJSONMapper[V any]() *JSONMapper[V] {
	return &JSONMapper[V]{}
}

func (JSONMapper[V]) ToRow(value *V) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONMapper[V]) FromRow(data []byte) (*V, error) {
	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return &value, nil
}
