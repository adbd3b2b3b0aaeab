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
	"time"
)

// Snapshot 会话的持久化投影：每轮结束后整体替换写入，重连时一次性读回。
// 不含原文轮次——重连后的上下文由滚动摘要与后续轮次补齐。
type Snapshot struct {
	ThreadID       string                          `json:"thread_id"`
	UserID         string                          `json:"user_id"`
	ActiveDomain   string                          `json:"active_domain"`
	CurrentIntent  string                          `json:"current_intent"`
	Slots          map[string]map[string]SlotValue `json:"slot_values,omitempty"`
	States         map[string]string               `json:"dialogue_states,omitempty"`
	RollingSummary string                          `json:"rolling_summary,omitempty"`
	TurnCount      int                             `json:"turn_count"`
	Timestamp      time.Time                       `json:"timestamp"`
}

// Snapshot 从当前 Session 构建持久化投影
func (s *Session) Snapshot() *Snapshot {
	return &Snapshot{
		ThreadID:       s.ThreadID,
		UserID:         s.UserID,
		ActiveDomain:   s.ActiveDomain,
		CurrentIntent:  s.CurrentIntent,
		Slots:          s.AllSlots(),
		States:         s.StatesCopy(),
		RollingSummary: s.RollingSummary(),
		TurnCount:      s.turnCountSafe(),
		Timestamp:      time.Now(),
	}
}

func (s *Session) turnCountSafe() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TurnCount
}

// Restore 用快照重建 Session（重连恢复路径）
func Restore(snap *Snapshot) *Session {
	s := New(snap.ThreadID, snap.UserID)
	s.ActiveDomain = snap.ActiveDomain
	s.CurrentIntent = snap.CurrentIntent
	s.rollingSummary = snap.RollingSummary
	for d, ds := range snap.Slots {
		for k, v := range ds {
			s.SetSlot(d, k, v)
		}
	}
	for d, st := range snap.States {
		s.SetState(d, st)
	}
	s.TurnCount = snap.TurnCount
	return s
}
