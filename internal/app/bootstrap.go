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

// Package app 统一初始化：根据配置装配日志与各存储后端，供 api 进程复用。
package app

import (
	"context"
	"fmt"

	"islander-chat/internal/memorystore"
	"islander-chat/internal/offers"
	"islander-chat/internal/session"
	"islander-chat/pkg/config"
	"islander-chat/pkg/log"
)

// Bootstrap 进程级共享依赖：配置、日志与存储后端
type Bootstrap struct {
	Config        *config.Config
	Logger        *log.Logger
	SnapshotStore session.SnapshotStore
	MemoryStore   memorystore.Store
	Inventory     offers.Inventory
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	b := &Bootstrap{Config: cfg, Logger: logger}
	if cfg == nil {
		return b, nil
	}

	b.SnapshotStore, err = session.NewSnapshotStore(cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("初始化会话快照存储失败: %w", err)
	}

	b.MemoryStore, err = memorystore.NewStore(ctx, cfg.Memory, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化长期记忆存储失败: %w", err)
	}

	b.Inventory, err = offers.NewInventory(ctx, cfg.Offers.Inventory)
	if err != nil {
		return nil, fmt.Errorf("初始化库存后端失败: %w", err)
	}

	return b, nil
}

// Close 释放 Bootstrap 持有的后端连接
func (b *Bootstrap) Close() error {
	var first error
	if b.MemoryStore != nil {
		if err := b.MemoryStore.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.Inventory != nil {
		if err := b.Inventory.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
