// Package store persists canonical transit entities as JSON documents grouped
// in named collections.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("document not found")

// Collection names a fixed group of documents of one entity type.
type Collection int

const (
	Areas Collection = iota + 1
	Stops
	Routes
	Trips
	Paths
	Segments
	Schedules
)

// Identification is how documents of a collection are keyed.
type Identification int

const (
	// ByID keys by the entity's own id field.
	ByID Identification = iota
	// ByFromTo keys by (from, to, type).
	ByFromTo
	// ByIDDate keys by (trip id, departure).
	ByIDDate
)

// Collections lists every collection in a stable order.
func Collections() []Collection {
	return []Collection{Areas, Stops, Routes, Trips, Paths, Segments, Schedules}
}

func (c Collection) Name() string {
	switch c {
	case Areas:
		return "areas"
	case Stops:
		return "stops"
	case Routes:
		return "routes"
	case Trips:
		return "trips"
	case Paths:
		return "paths"
	case Segments:
		return "segments"
	case Schedules:
		return "schedules"
	default:
		return ""
	}
}

func (c Collection) Identification() Identification {
	switch c {
	case Segments:
		return ByFromTo
	case Schedules:
		return ByIDDate
	default:
		return ByID
	}
}

func (c Collection) String() string { return c.Name() }

func (c Collection) valid() bool { return c.Name() != "" }

// Document is a storable entity.
type Document interface {
	Collection() Collection
	Key() string
}

// Repository stores documents by collection and key. Put replaces any
// document with the same key.
type Repository interface {
	Put(ctx context.Context, doc Document) error
	Get(ctx context.Context, c Collection, key string) (json.RawMessage, error)
	Delete(ctx context.Context, c Collection, key string) error
	Count(ctx context.Context, c Collection) (int, error)
}

// Load fetches a document and decodes it into T.
func Load[T any](ctx context.Context, r Repository, c Collection, key string) (T, error) {
	var v T
	raw, err := r.Get(ctx, c, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", c, key, err)
	}
	return v, nil
}

func encode(doc Document) (Collection, string, []byte, error) {
	c := doc.Collection()
	if !c.valid() {
		return 0, "", nil, fmt.Errorf("unknown collection %d", int(c))
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return 0, "", nil, fmt.Errorf("encode %s/%s: %w", c, doc.Key(), err)
	}
	return c, doc.Key(), b, nil
}
