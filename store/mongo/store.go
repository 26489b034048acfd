// Package mongo provides a MongoDB kv.Backend. Each key is one document whose
// _id is the key.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/coinledger/kv"
)

// DefaultCollection is the collection used when none is given.
const DefaultCollection = "coin_state"

// commitSeqID is the _id of the document every transactional commit bumps.
const commitSeqID = "commit_seq"

// compile-time interface checks
var (
	_ kv.Backend = (*Store)(nil)
	_ kv.Applier = (*Store)(nil)
)

type stateDoc struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// Store implements kv.Backend on a MongoDB collection.
//
// With WithTransactions, Apply validates the read-set and writes inside one
// multi-document transaction that also bumps a shared sequence document, so
// any two committing writers conflict on the server. Without it, commits
// are serialized by a mutex and are only safe for a single process.
type Store struct {
	client       *mongo.Client
	col          *mongo.Collection
	seq          *mongo.Collection
	gdb          *grove.DB
	transactions bool
	mu           sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithTransactions makes Apply run inside a multi-document transaction.
// Requires a replica set or sharded cluster.
func WithTransactions() Option {
	return func(s *Store) {
		s.transactions = true
	}
}

// New creates a Store over the named collection of db.
func New(db *mongo.Database, collection string, opts ...Option) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return newStore(db.Collection(collection), db.Collection(collection+"_seq"), opts)
}

// NewFromGrove creates a Store over the default collection of a grove
// MongoDB connection. Ping and Close go through grove.
func NewFromGrove(db *grove.DB, opts ...Option) *Store {
	mdb := mongodriver.Unwrap(db)
	s := newStore(mdb.Collection(DefaultCollection), mdb.Collection(DefaultCollection+"_seq"), opts)
	s.gdb = db
	return s
}

func newStore(col, seq *mongo.Collection, opts []Option) *Store {
	s := &Store{
		client: col.Database().Client(),
		col:    col,
		seq:    seq,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials uri and returns a Store over database.collection.
func Connect(ctx context.Context, uri, database, collection string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("coinledger/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // already failing
		return nil, fmt.Errorf("coinledger/mongo: ping: %w", err)
	}
	return New(client.Database(database), collection, opts...), nil
}

// Collection returns the underlying collection for direct access.
func (s *Store) Collection() *mongo.Collection { return s.col }

// Migrate is a no-op: _id is the only index the store needs.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.gdb != nil {
		return s.gdb.Ping(ctx)
	}
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.gdb != nil {
		return s.gdb.Close()
	}
	return s.client.Disconnect(context.Background())
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("coinledger/mongo: has %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var doc stateDoc
	err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("coinledger/mongo: get %s: %w", key, err)
	}
	return doc.Value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Value: value}})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Delete: true}})
}

// Scan matches _id against an anchored, quoted prefix regex, which the
// server answers from the _id index.
func (s *Store) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("coinledger/mongo: scan %s: %w", prefix, err)
	}

	var docs []stateDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("coinledger/mongo: scan %s: %w", prefix, err)
	}

	entries := make([]kv.Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, kv.Entry{Key: d.Key, Value: d.Value})
	}
	return entries, nil
}

// Apply validates rs and issues one ordered bulk write, inside a
// transaction when enabled.
func (s *Store) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	if !s.transactions {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.commit(ctx, rs, writes); err != nil {
			return wrapApply(err)
		}
		return nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("coinledger/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if err := s.commit(ctx, rs, writes); err != nil {
			return nil, err
		}
		if len(writes) == 0 {
			return nil, nil
		}
		_, err := s.seq.UpdateOne(ctx,
			bson.M{"_id": commitSeqID},
			bson.M{"$inc": bson.M{"n": 1}},
			options.UpdateOne().SetUpsert(true),
		)
		return nil, err
	})
	if err != nil {
		return wrapApply(err)
	}
	return nil
}

func (s *Store) commit(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	if err := rs.Validate(ctx, s); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		if w.Delete {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": w.Key}))
			continue
		}
		value := w.Value
		if value == nil {
			value = []byte{}
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": w.Key}).
			SetReplacement(stateDoc{Key: w.Key, Value: value}).
			SetUpsert(true))
	}

	_, err := s.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func wrapApply(err error) error {
	var labeled mongo.LabeledError
	switch {
	case errors.Is(err, kv.ErrConflict):
		return kv.ErrConflict
	case errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError"):
		return kv.ErrConflict
	default:
		return fmt.Errorf("coinledger/mongo: apply: %w", err)
	}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
