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
	"sync"

	"islander-chat/pkg/errors"
	"islander-chat/pkg/log"
	"islander-chat/pkg/metrics"
)

// Manager 会话生命周期管理：同一 thread 的轮次串行（单写者），不同 thread 完全并发。
// Acquire 持有 thread 锁直到调用方 release；第 k 轮的快照写入发生在锁释放之前，
// 因此第 k+1 轮（以及重连后的恢复）读到的状态不会旧于第 k 轮。
type Manager struct {
	store SnapshotStore
	log   *log.Logger

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器
func NewManager(store SnapshotStore, logger *log.Logger) *Manager {
	return &Manager{
		store:    store,
		log:      logger,
		locks:    make(map[string]*sync.Mutex),
		sessions: make(map[string]*Session),
	}
}

// Acquire 取得 thread 的独占会话；返回的 release 必须在本轮（含快照写入）结束后调用。
// 内存中无会话时尝试从快照恢复；快照缺失/损坏/读取失败都降级为全新会话。
func (m *Manager) Acquire(ctx context.Context, threadID, userID string) (*Session, func()) {
	m.mu.Lock()
	lock, ok := m.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[threadID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	release := lock.Unlock

	m.mu.Lock()
	sess, ok := m.sessions[threadID]
	m.mu.Unlock()
	if ok {
		return sess, release
	}

	sess = m.rehydrate(ctx, threadID, userID)
	m.mu.Lock()
	m.sessions[threadID] = sess
	m.mu.Unlock()
	return sess, release
}

// rehydrate 从快照恢复会话；任何失败都返回全新会话而不是错误
func (m *Manager) rehydrate(ctx context.Context, threadID, userID string) *Session {
	snap, err := m.store.Get(ctx, threadID)
	switch {
	case err != nil && errors.Is(err, errors.ErrSnapshotCorrupt):
		metrics.RehydrateTotal.WithLabelValues("corrupt").Inc()
		m.log.Warn("快照损坏，使用全新会话", "thread_id", threadID, "error", err)
	case err != nil:
		metrics.RehydrateTotal.WithLabelValues("error").Inc()
		m.log.Warn("快照读取失败，使用全新会话", "thread_id", threadID, "error", err)
	case snap == nil:
		metrics.RehydrateTotal.WithLabelValues("miss").Inc()
	default:
		metrics.RehydrateTotal.WithLabelValues("ok").Inc()
		sess := Restore(snap)
		if sess.UserID == "" {
			sess.UserID = userID
		}
		return sess
	}
	return New(threadID, userID)
}

// Checkpoint 写入会话快照；必须在 release 之前调用以保证轮次间顺序
func (m *Manager) Checkpoint(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	err := m.store.Put(ctx, s.Snapshot())
	if err != nil {
		metrics.SnapshotTotal.WithLabelValues("error").Inc()
		return errors.Wrapf(err, "thread %s 快照写入失败", s.ThreadID)
	}
	metrics.SnapshotTotal.WithLabelValues("ok").Inc()
	return nil
}

// Evict 移除内存中的会话（测试模拟重连；生产中依赖快照恢复）
func (m *Manager) Evict(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, threadID)
}

// Close 关闭底层快照存储
func (m *Manager) Close() error {
	return m.store.Close()
}
