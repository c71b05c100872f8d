// Package testutil provides a badger-backed reference collection, a reference
// canonicalizer, and deterministic planner/stage doubles for tests and tooling.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/autom8ter/quarry"
	"github.com/autom8ter/quarry/errors"
	"github.com/autom8ter/quarry/kv"
	"github.com/autom8ter/quarry/kv/badger"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
)

// Collection is a reference quarry.Collection backed by a kv store. Documents
// are stored under <ns>/doc/<id>; secondary index entries under
// <ns>/idx/<name>/<value>/<id>.
type Collection struct {
	ns       string
	capped   bool
	indexes  []quarry.IndexEntry
	allowed  map[string][]quarry.KeyPattern
	cache    quarry.PlanCache
	registry *quarry.InMemRegistry
	db       kv.DB

	mu      sync.Mutex
	nextRID quarry.RecordID
	rids    map[string]quarry.RecordID
}

// CollectionOption configures a reference collection
type CollectionOption func(*Collection)

// WithCapped marks the collection capped
func WithCapped() CollectionOption {
	return func(c *Collection) {
		c.capped = true
	}
}

// WithIndex adds an index descriptor to the collection's catalog
func WithIndex(entry quarry.IndexEntry) CollectionOption {
	return func(c *Collection) {
		c.indexes = append(c.indexes, entry)
	}
}

// WithAllowedIndices configures an index filter for the given query shape
func WithAllowedIndices(shape string, patterns []quarry.KeyPattern) CollectionOption {
	return func(c *Collection) {
		c.allowed[shape] = patterns
	}
}

// WithPlanCache overrides the collection's plan cache (nil disables it)
func WithPlanCache(cache quarry.PlanCache) CollectionOption {
	return func(c *Collection) {
		c.cache = cache
	}
}

// NewCollection opens an in-memory reference collection. An _id index is
// always present unless the catalog is overridden after construction.
func NewCollection(ns string, opts ...CollectionOption) (*Collection, error) {
	db, err := badger.Open("")
	if err != nil {
		return nil, err
	}
	cache, err := quarry.NewLRUPlanCache(128)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		ns:      ns,
		allowed: map[string][]quarry.KeyPattern{},
		cache:   cache,
		// record id zero is reserved
		nextRID:  1,
		rids:     map[string]quarry.RecordID{},
		registry: quarry.NewInMemRegistry(),
		db:       db,
		indexes: []quarry.IndexEntry{
			{
				Name:       "_id_",
				KeyPattern: quarry.KeyPattern{{Field: "_id", Order: 1}},
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the underlying store
func (c *Collection) Close() error {
	return c.db.Close()
}

func (c *Collection) Namespace() string { return c.ns }

func (c *Collection) Capped() bool { return c.capped }

func (c *Collection) Indexes() []quarry.IndexEntry {
	indexes := make([]quarry.IndexEntry, len(c.indexes))
	copy(indexes, c.indexes)
	return indexes
}

func (c *Collection) IDIndex() (quarry.IndexEntry, bool) {
	for _, entry := range c.indexes {
		if len(entry.KeyPattern) == 1 && entry.KeyPattern[0].Field == "_id" {
			return entry, true
		}
	}
	return quarry.IndexEntry{}, false
}

func (c *Collection) AllowedIndices(shape string) ([]quarry.KeyPattern, bool) {
	patterns, ok := c.allowed[shape]
	if !ok {
		return nil, false
	}
	owned := make([]quarry.KeyPattern, len(patterns))
	copy(owned, patterns)
	return owned, true
}

func (c *Collection) PlanCache() quarry.PlanCache { return c.cache }

func (c *Collection) Registry() quarry.CursorRegistry { return c.registry }

// CursorCount returns the number of registered runners
func (c *Collection) CursorCount() int {
	return c.registry.Len()
}

func (c *Collection) docKey(id string) []byte {
	return []byte(fmt.Sprintf("%s/doc/%s", c.ns, id))
}

func (c *Collection) idxKey(index, value, id string) []byte {
	return []byte(fmt.Sprintf("%s/idx/%s/%s/%s", c.ns, index, value, id))
}

// Insert stores the document and its secondary index entries
func (c *Collection) Insert(ctx context.Context, doc *quarry.Document) error {
	id := doc.GetString("_id")
	if id == "" {
		return errors.New(errors.Validation, "document missing _id: %s", doc.String())
	}
	flattened, err := doc.Flatten()
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to flatten document")
	}
	if err := c.db.Tx(true, func(tx kv.Tx) error {
		if err := tx.Set(c.docKey(id), doc.Bytes()); err != nil {
			return err
		}
		for _, entry := range c.indexes {
			if len(entry.KeyPattern) == 1 && entry.KeyPattern[0].Field == "_id" {
				continue
			}
			var value string
			for _, f := range entry.KeyPattern {
				value += cast.ToString(flattened[f.Field]) + "|"
			}
			if err := tx.Set(c.idxKey(entry.Name, value, id), []byte(id)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rids[id]; !ok {
		c.rids[id] = c.nextRID
		c.nextRID++
	}
	return nil
}

// DocumentByID resolves a document directly by its _id value
func (c *Collection) DocumentByID(ctx context.Context, id any) (*quarry.Document, quarry.RecordID, error) {
	key := cast.ToString(id)
	var bits []byte
	if err := c.db.Tx(false, func(tx kv.Tx) error {
		var err error
		bits, err = tx.Get(c.docKey(key))
		return err
	}); err != nil {
		return nil, 0, errors.Wrap(err, errors.Internal, "")
	}
	if bits == nil {
		return nil, 0, errors.New(errors.NotFound, "document not found: %v", id)
	}
	doc, err := quarry.NewDocumentFromBytes(bits)
	if err != nil {
		return nil, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return doc, c.rids[key], nil
}

// All returns every document in the collection in key order
func (c *Collection) All(ctx context.Context) ([]*quarry.Document, error) {
	var docs []*quarry.Document
	prefix := []byte(fmt.Sprintf("%s/doc/", c.ns))
	if err := c.db.Tx(false, func(tx kv.Tx) error {
		it := tx.NewIterator(kv.IterOpts{Prefix: prefix})
		defer it.Close()
		for ; it.Valid(); it.Next() {
			bits, err := it.Item().Value()
			if err != nil {
				return err
			}
			doc, err := quarry.NewDocumentFromBytes(bits)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return docs, nil
}

// RecordID returns the record id assigned to the given document id
func (c *Collection) RecordID(id string) quarry.RecordID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rids[id]
}

// NewUserDoc creates a fake user document
func NewUserDoc() *quarry.Document {
	doc, err := quarry.NewDocumentFrom(map[string]any{
		"_id":        gofakeit.UUID(),
		"name":       gofakeit.Name(),
		"account_id": gofakeit.IntRange(0, 100),
		"language":   gofakeit.Language(),
		"age":        gofakeit.IntRange(0, 100),
		"contact": map[string]any{
			"email": gofakeit.Email(),
			"phone": gofakeit.Phone(),
		},
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// Seed concurrently inserts n fake user documents
func Seed(ctx context.Context, c *Collection, n int) error {
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		doc := NewUserDoc()
		eg.Go(func() error {
			return c.Insert(ctx, doc)
		})
	}
	return eg.Wait()
}
