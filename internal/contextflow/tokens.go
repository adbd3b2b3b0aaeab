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

// Package contextflow 管理上下文生命周期：记忆融合、token 预算执行、滚动摘要。
package contextflow

// Estimator token 估算；实现不允许失败
type Estimator interface {
	Estimate(text string) int
}

// HeuristicEstimator 确定性 chars/4 估算，向上取整。
// 接入真实子词分词器时替换此实现即可。
type HeuristicEstimator struct{}

// Estimate 实现 Estimator
func (HeuristicEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
