package repository

import (
	"encoding/json"
)

// Records are stored as JSON. time.Time fields encode as RFC3339Nano strings
// and decode back to time.Time; every record is normalized to UTC before
// encoding so the stored form is zone independent.

type utcNormalizer[T any] interface {
	UTC() T
}

func encode[T utcNormalizer[T]](v T) ([]byte, error) {
	return json.Marshal(v.UTC())
}

func decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
