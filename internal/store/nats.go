package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// kvBucket is the part of a JetStream key/value bucket the store uses.
type kvBucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type jetstreamBucket struct {
	kv jetstream.KeyValue
}

func (b jetstreamBucket) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (b jetstreamBucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

func (b jetstreamBucket) Delete(ctx context.Context, key string) error {
	return b.kv.Delete(ctx, key)
}

// NATSStore keeps session ids in a JetStream key/value bucket.
type NATSStore struct {
	bucket kvBucket
	conn   *nats.Conn
	log    *zap.Logger
}

var _ Backend = (*NATSStore)(nil)

// NATSOptions configures the JetStream-backed store.
type NATSOptions struct {
	URL            string
	Bucket         string
	ConnectTimeout time.Duration
}

// NewNATSStore connects to the server and binds to the bucket, creating it
// when it does not exist yet.
func NewNATSStore(ctx context.Context, opts NATSOptions, logger *zap.Logger) (*NATSStore, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("nats bucket cannot be empty")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	conn, err := nats.Connect(opts.URL, nats.Name("chromelink"), nats.Timeout(opts.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(ctx, opts.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      opts.Bucket,
			Description: "chromelink WebDriver session ids",
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind session bucket %s: %w", opts.Bucket, err)
	}

	return newNATSStoreWithBucket(jetstreamBucket{kv: kv}, conn, logger), nil
}

func newNATSStoreWithBucket(bucket kvBucket, conn *nats.Conn, logger *zap.Logger) *NATSStore {
	return &NATSStore{bucket: bucket, conn: conn, log: logger.Named("store.nats")}
}

func (s *NATSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session key %s: %w", key, err)
	}
	return value, nil
}

func (s *NATSStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.bucket.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write session key %s: %w", key, err)
	}
	return nil
}

// Delete places a delete marker on key. JetStream accepts deletes of absent
// keys, so presence is checked first to report ErrNotFound.
func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete session key %s: %w", key, err)
	}
	s.log.Debug("Deleted session key.", zap.String("key", key))
	return nil
}

func (s *NATSStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
