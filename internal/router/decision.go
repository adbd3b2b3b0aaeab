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

// Package router 按轮分类用户意图：粘性域滞后 + Platt 校准置信度。
package router

// Action 路由动作
type Action string

const (
	// ActionDispatch 置信度足够，派发到 Domain
	ActionDispatch Action = "dispatch"
	// ActionClarify 置信度不足，向用户反问消歧
	ActionClarify Action = "clarify"
	// ActionStick 保持粘性域（滞后或延续性规则命中）
	ActionStick Action = "stick"
)

// Decision 单轮路由结果；发出后不再修改
type Decision struct {
	Domain               string  `json:"domain"`
	RawConfidence        float64 `json:"raw_confidence"`
	CalibratedConfidence float64 `json:"calibrated_confidence"`
	Action               Action  `json:"action"`
}
