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

package supervisor

import (
	"context"
	"sync"
	"time"

	"islander-chat/pkg/log"
)

// FollowupTask 一条轮后任务（如长期记忆写入）；Key 为幂等键，重复入队被去重
type FollowupTask struct {
	Key string
	Run func(ctx context.Context) error
}

// FollowupQueue 显式后续任务队列：带重试与幂等键，替代裸 goroutine 式 fire-and-forget。
// 队列满时丢弃并记日志（后续任务都是尽力而为的）。
type FollowupQueue struct {
	ch      chan FollowupTask
	retries int
	log     *log.Logger

	mu   sync.Mutex
	seen map[string]time.Time

	wg sync.WaitGroup
}

// NewFollowupQueue 创建队列；capacity <= 0 取 64，retries < 0 取 0
func NewFollowupQueue(capacity, retries int, logger *log.Logger) *FollowupQueue {
	if capacity <= 0 {
		capacity = 64
	}
	if retries < 0 {
		retries = 0
	}
	return &FollowupQueue{
		ch:      make(chan FollowupTask, capacity),
		retries: retries,
		log:     logger,
		seen:    make(map[string]time.Time),
	}
}

// Start 启动消费协程；ctx 取消后处理完队内任务再退出
func (q *FollowupQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				q.drain()
				return
			case task, ok := <-q.ch:
				if !ok {
					return
				}
				q.run(task)
			}
		}
	}()
}

// Enqueue 入队；幂等键重复或队列满时返回 false
func (q *FollowupQueue) Enqueue(task FollowupTask) bool {
	if task.Key != "" {
		q.mu.Lock()
		if _, dup := q.seen[task.Key]; dup {
			q.mu.Unlock()
			return false
		}
		q.seen[task.Key] = time.Now()
		q.gcLocked()
		q.mu.Unlock()
	}
	select {
	case q.ch <- task:
		return true
	default:
		q.log.Warn("后续任务队列已满，丢弃", "key", task.Key)
		return false
	}
}

// Stop 等待消费协程退出
func (q *FollowupQueue) Stop() {
	q.wg.Wait()
}

func (q *FollowupQueue) run(task FollowupTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var err error
	for attempt := 0; attempt <= q.retries; attempt++ {
		if err = task.Run(ctx); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	q.log.Warn("后续任务重试耗尽", "key", task.Key, "error", err)
}

func (q *FollowupQueue) drain() {
	for {
		select {
		case task := <-q.ch:
			q.run(task)
		default:
			return
		}
	}
}

// gcLocked 幂等键窗口清理，避免 map 无界增长；调用方必须持锁
func (q *FollowupQueue) gcLocked() {
	if len(q.seen) < 4096 {
		return
	}
	cutoff := time.Now().Add(-time.Hour)
	for k, at := range q.seen {
		if at.Before(cutoff) {
			delete(q.seen, k)
		}
	}
}
