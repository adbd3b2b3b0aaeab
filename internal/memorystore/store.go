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

// Package memorystore 提供跨会话长期记忆的召回与写入。
// 召回是尽力而为的：超时或后端故障返回 ErrMemoryTimeout / 空结果，不阻塞对话主路径。
package memorystore

import (
	"context"
	"fmt"
	"time"

	"islander-chat/pkg/config"
	"islander-chat/pkg/log"
)

// Snippet 一条召回的记忆片段
type Snippet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Domain    string    `json:"domain"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store 长期记忆存储抽象
type Store interface {
	// Recall 按用户与当前查询召回最多 limit 条片段，按更新时间倒序
	Recall(ctx context.Context, userID, domain, query string, limit int) ([]Snippet, error)
	// Write 追加或更新一条记忆片段
	Write(ctx context.Context, snip Snippet) error
	Close() error
}

// NewStore 按配置创建长期记忆存储
func NewStore(ctx context.Context, cfg config.MemoryConfig, logger *log.Logger) (Store, error) {
	switch cfg.Type {
	case "", "nop":
		return NewNopStore(), nil
	case "postgres":
		return NewPgStore(ctx, cfg.DSN)
	case "http":
		timeout := config.ParseDuration(cfg.Timeout, 3*time.Second)
		return NewHTTPStore(cfg.BaseURL, timeout, cfg.RateLimitRPS, logger), nil
	default:
		return nil, fmt.Errorf("unknown memory store type: %s", cfg.Type)
	}
}

// NopStore 空实现：召回永远为空，写入直接丢弃
type NopStore struct{}

// NewNopStore 创建空实现
func NewNopStore() *NopStore { return &NopStore{} }

func (n *NopStore) Recall(ctx context.Context, userID, domain, query string, limit int) ([]Snippet, error) {
	return nil, nil
}

func (n *NopStore) Write(ctx context.Context, snip Snippet) error { return nil }

func (n *NopStore) Close() error { return nil }
