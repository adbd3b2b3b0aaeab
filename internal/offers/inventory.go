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

package offers

import (
	"context"
	"fmt"
	"sync"

	"islander-chat/pkg/config"
)

// Inventory 库存聚合查询后端
type Inventory interface {
	Query(ctx context.Context, f Filters) (Summary, error)
	Close() error
}

// NewInventory 根据配置创建库存后端
func NewInventory(ctx context.Context, cfg config.InventoryConfig) (Inventory, error) {
	switch cfg.Type {
	case "", "static":
		return NewStaticInventory(nil), nil
	case "postgres":
		return NewPgInventory(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown inventory type: %s", cfg.Type)
	}
}

// StaticInventory 内存库存：配置或测试注入，线上用于本地开发
type StaticInventory struct {
	mu       sync.RWMutex
	listings []Listing
}

// NewStaticInventory 创建内存库存
func NewStaticInventory(listings []Listing) *StaticInventory {
	return &StaticInventory{listings: listings}
}

// Add 追加库存记录
func (s *StaticInventory) Add(listings ...Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, listings...)
}

// Query 扫描匹配并聚合
func (s *StaticInventory) Query(ctx context.Context, f Filters) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []Listing
	for _, l := range s.listings {
		if f.Matches(l) {
			hits = append(hits, l)
		}
	}
	return Summarize(hits), nil
}

// Close 实现 Inventory
func (s *StaticInventory) Close() error { return nil }
