// Package core defines the authData record and the storage contract every
// store driver implements.
package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/authdata/internal/providers"
)

// Record is the authData a user has linked, keyed by provider name.
// Version increases by one on every successful write.
type Record struct {
	UserID    string                        `json:"userId"`
	Providers map[string]providers.AuthData `json:"authData"`
	Version   int64                         `json:"version"`
}

// Clone deep-copies the record.
func (r Record) Clone() Record {
	out := Record{UserID: r.UserID, Version: r.Version, Providers: make(map[string]providers.AuthData, len(r.Providers))}
	for k, v := range r.Providers {
		out.Providers[k] = v.Clone()
	}
	return out
}

// Store persists authData records.
type Store interface {
	// Get returns the record for userID or ErrNotFound.
	Get(ctx context.Context, userID string) (Record, error)
	// CompareAndSwap writes rec's providers if the stored version equals
	// expected (0 when no record exists yet) and returns the stored record.
	// A version mismatch fails with ErrConflict and writes nothing.
	CompareAndSwap(ctx context.Context, userID string, expected int64, rec Record) (Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// EncodeProviders serializes the provider map as stored by the drivers.
func EncodeProviders(p map[string]providers.AuthData) ([]byte, error) {
	if p == nil {
		p = map[string]providers.AuthData{}
	}
	return json.Marshal(p)
}

// DecodeProviders is the inverse of EncodeProviders.
func DecodeProviders(b []byte) (map[string]providers.AuthData, error) {
	out := map[string]providers.AuthData{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: decode authData: %v", ErrInvalid, err)
	}
	return out, nil
}
