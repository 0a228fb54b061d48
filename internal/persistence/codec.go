package persistence

import "encoding/json"

// EncodeValue serializes a step input snapshot or output for storage.
//
// Values reaching the store have already passed schema validation, so
// they are structural data (maps, slices, scalars), which is exactly
// JSON's data model. A nil value encodes to nil, which stores as NULL.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeValue is the inverse of EncodeValue. Empty input decodes to nil.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeParams decodes a stored input snapshot. Empty input decodes to
// a nil map, matching outcomes recorded for skipped steps.
func DecodeParams(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p map[string]any
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}
