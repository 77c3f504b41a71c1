package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/wire"
)

// RedisStore is a Store backed by Redis.
// It uses a simple key structure:
//
//	<prefix>machine:<id>      => HASH of the machine record and its state
//	<prefix>schematic:<name>  => encoded schematic
//
// Creation and state updates run as Lua scripts so that the existence and
// commit tag checks are atomic with the write.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

const (
	hSchematicName = "schematic_name"
	hSchematic     = "schematic"
	hMetadata      = "metadata"
	hState         = "state"
	hInput         = "input"
	hParameter     = "parameter"
	hCommitTag     = "commit_tag"
	hUpdatedAt     = "updated_at"
)

// KEYS[1] machine key; ARGV field/value pairs.
var createMachineScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// KEYS[1] machine key; ARGV[1] expected tag, ARGV[2..] field/value pairs.
var setStateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'commit_tag')
if not current then
	return -1
end
if current ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 1
`)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "statum:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "statum:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyMachine(id string) string {
	return s.prefix + "machine:" + id
}

func (s *RedisStore) keySchematic(name string) string {
	return s.prefix + "schematic:" + name
}

func (s *RedisStore) StoreSchematic(ctx context.Context, name string, data []byte) error {
	return s.client.Set(ctx, s.keySchematic(name), data, 0).Err()
}

func (s *RedisStore) GetSchematic(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keySchematic(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, api.ErrSchematicNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) CreateMachine(ctx context.Context, rec MachineRecord) (StateRecord, error) {
	res, err := createMachineScript.Run(ctx, s.client, []string{s.keyMachine(rec.ID)},
		hSchematicName, rec.SchematicName,
		hSchematic, rec.Schematic,
		hMetadata, wire.EncodeStringMap(rec.Metadata),
		hState, rec.InitialState,
		hInput, "",
		hParameter, "",
		hCommitTag, rec.CommitTag,
		hUpdatedAt, rec.CreatedAt.UTC().UnixNano(),
	).Int64()
	if err != nil {
		return StateRecord{}, err
	}
	if res == 0 {
		return StateRecord{}, api.ErrMachineExists
	}
	return stateFromRecord(rec), nil
}

func (s *RedisStore) DeleteMachine(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.keyMachine(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return api.ErrMachineNotFound
	}
	return nil
}

func (s *RedisStore) GetMachineState(ctx context.Context, id string) (StateRecord, error) {
	vals, err := s.client.HMGet(ctx, s.keyMachine(id), hState, hInput, hParameter, hCommitTag, hUpdatedAt).Result()
	if err != nil {
		return StateRecord{}, err
	}
	if vals[0] == nil {
		return StateRecord{}, api.ErrMachineNotFound
	}

	st := StateRecord{MachineID: id}
	st.State = []byte(redisString(vals[0]))
	st.Input = nilIfEmpty([]byte(redisString(vals[1])))
	st.Parameter = redisString(vals[2])
	st.CommitTag = redisString(vals[3])
	if raw := redisString(vals[4]); raw != "" {
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return StateRecord{}, fmt.Errorf("machine %s: bad updated_at %q: %w", id, raw, err)
		}
		st.UpdatedAt = time.Unix(0, ns).UTC()
	}
	return st, nil
}

func (s *RedisStore) SetMachineState(ctx context.Context, id string, upd StateUpdate) (StateRecord, error) {
	res, err := setStateScript.Run(ctx, s.client, []string{s.keyMachine(id)},
		upd.ExpectedCommitTag,
		hState, upd.State,
		hInput, upd.Input,
		hParameter, upd.Parameter,
		hCommitTag, upd.NewCommitTag,
		hUpdatedAt, upd.UpdatedAt.UTC().UnixNano(),
	).Int64()
	if err != nil {
		return StateRecord{}, err
	}
	switch res {
	case 1:
		return stateFromUpdate(id, upd), nil
	case 0:
		return StateRecord{}, api.ErrConcurrencyConflict
	default:
		return StateRecord{}, api.ErrMachineNotFound
	}
}

func (s *RedisStore) GetMachineMetadata(ctx context.Context, id string) (map[string]string, error) {
	raw, err := s.client.HGet(ctx, s.keyMachine(id), hMetadata).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, api.ErrMachineNotFound
	}
	if err != nil {
		return nil, err
	}
	return wire.DecodeStringMap(raw)
}

func (s *RedisStore) GetMachineSchematic(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.keyMachine(id), hSchematic).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, api.ErrMachineNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func redisString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
