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
	"fmt"
	"sync"
	"time"

	"islander-chat/pkg/config"
)

// SnapshotStore 快照存储抽象：miss 返回 (nil, nil)，损坏返回 ErrSnapshotCorrupt
type SnapshotStore interface {
	Get(ctx context.Context, threadID string) (*Snapshot, error)
	Put(ctx context.Context, snap *Snapshot) error
	Close() error
}

// NewSnapshotStore 根据配置创建快照存储
func NewSnapshotStore(cfg config.SnapshotConfig) (SnapshotStore, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemorySnapshotStore(), nil
	case "file":
		return NewFileSnapshotStore(cfg.Dir)
	case "redis":
		ttl := config.ParseDuration(cfg.TTL, 72*time.Hour)
		return NewRedisSnapshotStore(cfg.Addr, cfg.Password, cfg.DB, ttl), nil
	default:
		return nil, fmt.Errorf("不支持的快照存储类型: %s", cfg.Type)
	}
}

// MemorySnapshotStore 内存实现（map + mutex），单进程默认
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemorySnapshotStore 创建内存快照存储
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[string]*Snapshot)}
}

// Get 实现 SnapshotStore
func (m *MemorySnapshotStore) Get(ctx context.Context, threadID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[threadID]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

// Put 实现 SnapshotStore；整体替换，不存在部分写入
func (m *MemorySnapshotStore) Put(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	cp := *snap
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ThreadID] = &cp
	return nil
}

// Close 实现 SnapshotStore
func (m *MemorySnapshotStore) Close() error { return nil }
