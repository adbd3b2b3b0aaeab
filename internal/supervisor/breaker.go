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

// Package supervisor 单轮编排：路由→上下文→策略→快照，以及降级与后续任务。
package supervisor

import (
	"sync"
	"time"

	"islander-chat/pkg/errors"
	"islander-chat/pkg/metrics"
)

// BreakerState 熔断器状态
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Clock 时间抽象，测试注入假时钟
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker 熔断器：连续失败达到阈值后打开，等待重置窗口后半开试探。
// 打开期间调用方走降级路径（跳过召回 / 报盘不可用），绝不让失败级联。
type Breaker struct {
	mu           sync.Mutex
	name         string
	state        BreakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	clock        Clock
}

// BreakerOption 配置项
type BreakerOption func(*Breaker)

// WithClock 注入时钟
func WithClock(c Clock) BreakerOption {
	return func(b *Breaker) { b.clock = c }
}

// NewBreaker 创建熔断器
func NewBreaker(name string, threshold int, resetTimeout time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	b := &Breaker{
		name:         name,
		state:        BreakerClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        realClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.publishState()
	return b
}

// Execute 在熔断器保护下执行 fn；打开时返回 ErrCircuitOpen
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return errors.Wrap(errors.ErrCircuitOpen, b.name)
	}
	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.clock.Now().Sub(b.openedAt) > b.resetTimeout {
			b.transitionTo(BreakerHalfOpen)
			return true
		}
		return false
	default: // half-open：放行试探请求
		return true
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == BreakerHalfOpen {
		b.transitionTo(BreakerOpen)
		return
	}
	if b.state == BreakerClosed && b.failures >= b.threshold {
		b.transitionTo(BreakerOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != BreakerClosed {
		b.transitionTo(BreakerClosed)
	}
}

// transitionTo 调用方必须持锁
func (b *Breaker) transitionTo(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	if s == BreakerOpen {
		b.openedAt = b.clock.Now()
	}
	b.publishState()
}

func (b *Breaker) publishState() {
	var v float64
	switch b.state {
	case BreakerOpen:
		v = 1
	case BreakerHalfOpen:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(b.name).Set(v)
}
