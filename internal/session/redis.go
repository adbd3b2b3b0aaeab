// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"islander-chat/pkg/errors"
)

const redisSnapshotPrefix = "ichat:snapshot:"

// RedisSnapshotStore Redis 快照存储：多实例部署时共享，SET 整键替换保证原子性
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore 创建 Redis 快照存储
func NewRedisSnapshotStore(addr, password string, db int, ttl time.Duration) *RedisSnapshotStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

// Get 实现 SnapshotStore
func (r *RedisSnapshotStore) Get(ctx context.Context, threadID string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, redisSnapshotPrefix+threadID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Wrap(err, "读取快照失败")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(errors.ErrSnapshotCorrupt, "thread %s", threadID)
	}
	return &snap, nil
}

// Put 实现 SnapshotStore
func (r *RedisSnapshotStore) Put(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "序列化快照失败")
	}
	return r.client.Set(ctx, redisSnapshotPrefix+snap.ThreadID, data, r.ttl).Err()
}

// Close 实现 SnapshotStore
func (r *RedisSnapshotStore) Close() error {
	return r.client.Close()
}
