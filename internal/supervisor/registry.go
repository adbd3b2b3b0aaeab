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

import "sync"

// CapabilityRegistry 显式能力注册表：域的健康状态在此登记，
// 派发前查询，替代全局特性开关的副作用式修改。
// 分类器连续失败 disableAfter 轮后派发被禁用，成功一次即恢复。
type CapabilityRegistry struct {
	mu           sync.RWMutex
	failures     map[string]int
	disabled     map[string]bool
	disableAfter int
}

// NewCapabilityRegistry 创建注册表；disableAfter <= 0 时取 5
func NewCapabilityRegistry(disableAfter int) *CapabilityRegistry {
	if disableAfter <= 0 {
		disableAfter = 5
	}
	return &CapabilityRegistry{
		failures:     make(map[string]int),
		disabled:     make(map[string]bool),
		disableAfter: disableAfter,
	}
}

// Dispatchable 域当前是否可派发
func (r *CapabilityRegistry) Dispatchable(domain string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[domain]
}

// ReportSuccess 域处理成功：清零失败计数并恢复派发
func (r *CapabilityRegistry) ReportSuccess(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[domain] = 0
	r.disabled[domain] = false
}

// ReportFailure 域处理失败：连续失败达到阈值后禁用派发
func (r *CapabilityRegistry) ReportFailure(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[domain]++
	if r.failures[domain] >= r.disableAfter {
		r.disabled[domain] = true
	}
}

// States 所有已知域的健康状态快照（健康检查接口用）
func (r *CapabilityRegistry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.failures))
	for domain := range r.failures {
		if r.disabled[domain] {
			out[domain] = "disabled"
		} else {
			out[domain] = "healthy"
		}
	}
	return out
}
