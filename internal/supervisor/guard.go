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
	"time"

	"islander-chat/internal/memorystore"
	"islander-chat/internal/offers"
)

// GuardedMemory 给长期记忆调用加熔断与超时；熔断打开时召回为空、写入丢弃，
// 调用方照常推进本轮（跳过长期上下文即可）。
type GuardedMemory struct {
	inner   memorystore.Store
	breaker *Breaker
	timeout time.Duration
}

// GuardMemory 包装记忆存储
func GuardMemory(inner memorystore.Store, breaker *Breaker, timeout time.Duration) *GuardedMemory {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &GuardedMemory{inner: inner, breaker: breaker, timeout: timeout}
}

// Recall 实现 memorystore.Store
func (g *GuardedMemory) Recall(ctx context.Context, userID, domain, query string, limit int) ([]memorystore.Snippet, error) {
	var out []memorystore.Snippet
	err := g.breaker.Execute(func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		snips, err := g.inner.Recall(cctx, userID, domain, query, limit)
		if err != nil {
			return err
		}
		out = snips
		return nil
	})
	return out, err
}

// Write 实现 memorystore.Store
func (g *GuardedMemory) Write(ctx context.Context, snip memorystore.Snippet) error {
	return g.breaker.Execute(func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.inner.Write(cctx, snip)
	})
}

// Close 实现 memorystore.Store
func (g *GuardedMemory) Close() error { return g.inner.Close() }

// GuardedOffers 给报盘查询加熔断与超时；打开时返回 ErrCircuitOpen，
// 策略层据此降级为"availability unknown"文案。
type GuardedOffers struct {
	inner   interface {
		Query(ctx context.Context, f offers.Filters) (offers.Summary, error)
	}
	breaker *Breaker
	timeout time.Duration
}

// GuardOffers 包装报盘查询
func GuardOffers(inner interface {
	Query(ctx context.Context, f offers.Filters) (offers.Summary, error)
}, breaker *Breaker, timeout time.Duration) *GuardedOffers {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &GuardedOffers{inner: inner, breaker: breaker, timeout: timeout}
}

// Query 实现 policy.OfferQuerier
func (g *GuardedOffers) Query(ctx context.Context, f offers.Filters) (offers.Summary, error) {
	var out offers.Summary
	err := g.breaker.Execute(func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		sum, err := g.inner.Query(cctx, f)
		if err != nil {
			return err
		}
		out = sum
		return nil
	})
	return out, err
}
