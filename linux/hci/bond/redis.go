package bond

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	ble "github.com/rigado/blesmp"
	"github.com/rigado/blesmp/linux/hci/smp"
)

const (
	DefaultKeyPrefix    = "smp:"
	DefaultRedisTimeout = 2 * time.Second

	maxTxRetries = 10
)

// RedisStore is a smp.SecurityDB kept in redis, one JSON value per peer.
// Updates use optimistic transactions so devices may share a server.
type RedisStore struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, timeout: DefaultRedisTimeout}
}

// SetTimeout bounds every call to the server.
func (s *RedisStore) SetTimeout(d time.Duration) {
	s.timeout = d
}

func (s *RedisStore) recordKey(peer ble.Addr) string {
	return s.prefix + "rec:" + peer.String()
}

func (s *RedisStore) divKey() string {
	return s.prefix + "div"
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, c getter, key string) (*smp.Record, error) {
	b, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, smp.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	r := &smp.Record{}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, errors.Wrapf(err, "invalid record %v", key)
	}
	return r, nil
}

// update runs fn on the record of peer and writes it back if nothing else
// changed it in the meantime.
func (s *RedisStore) update(peer ble.Addr, fn func(ctx context.Context, tx *redis.Tx, r *smp.Record) error) (*smp.Record, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	key := s.recordKey(peer)
	var out *smp.Record
	txf := func(tx *redis.Tx) error {
		r, err := get(ctx, tx, key)
		if err == smp.ErrRecordNotFound {
			r, err = &smp.Record{Address: peer.String(), Keys: make(map[smp.KeyKind]smp.Key)}, nil
		}
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, r); err != nil {
			return err
		}

		b, err := json.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "can't marshal record")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		out = r
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "update %v", peer)
		}
		return out, nil
	}
	return nil, errors.Errorf("update %v: too many conflicts", peer)
}

func (s *RedisStore) DIV(peer ble.Addr) (uint16, error) {
	r, err := s.update(peer, func(ctx context.Context, tx *redis.Tx, r *smp.Record) error {
		if r.DIV != 0 {
			return nil
		}
		for r.DIV == 0 {
			n, err := tx.Incr(ctx, s.divKey()).Result()
			if err != nil {
				return errors.Wrap(err, "can't allocate div")
			}
			r.DIV = uint16(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return r.DIV, nil
}

func (s *RedisStore) SaveKey(peer ble.Addr, key smp.Key, bonding bool) error {
	_, err := s.update(peer, func(ctx context.Context, tx *redis.Tx, r *smp.Record) error {
		r.Apply(key, bonding)
		return nil
	})
	return err
}

func (s *RedisStore) Find(peer ble.Addr) (*smp.Record, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	r, err := get(ctx, s.rdb, s.recordKey(peer))
	if err == smp.ErrRecordNotFound {
		return nil, errors.Wrapf(err, "%v", peer)
	}
	return r, err
}

func (s *RedisStore) Delete(peer ble.Addr) error {
	ctx, cancel := s.ctx()
	defer cancel()

	return errors.Wrap(s.rdb.Del(ctx, s.recordKey(peer)).Err(), "redis del")
}

// Records returns every record under the key prefix.
func (s *RedisStore) Records() ([]*smp.Record, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var out []*smp.Record
	iter := s.rdb.Scan(ctx, 0, s.prefix+"rec:*", 100).Iterator()
	for iter.Next(ctx) {
		r, err := get(ctx, s.rdb, iter.Val())
		if err == smp.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, errors.Wrap(iter.Err(), "redis scan")
}
