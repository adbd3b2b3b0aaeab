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
	"sync"
	"time"
)

const maxTurnHistory = 50

// Turn 单条对话轮次
type Turn struct {
	Role    string    `json:"role"` // user | assistant
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session 会话状态：thread 唯一状态载体，仅由 Supervisor 在持锁期间变更
type Session struct {
	ThreadID  string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time

	ActiveDomain         string
	CurrentIntent        string
	RawConfidence        float64
	CalibratedConfidence float64

	slots  map[string]map[string]SlotValue // domain → slot → value
	states map[string]string               // domain → dialogue state

	turnHistory    []Turn
	rollingSummary string
	scratch        string

	TokenBudget   int
	TokenEstimate int
	TurnCount     int

	mu sync.RWMutex
}

// New 创建新 Session
func New(threadID, userID string) *Session {
	now := time.Now()
	return &Session{
		ThreadID:  threadID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		slots:     make(map[string]map[string]SlotValue),
		states:    make(map[string]string),
	}
}

// AppendTurn 追加一条对话轮次并递增轮次计数（仅 user 轮计数）
func (s *Session) AppendTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	s.turnHistory = append(s.turnHistory, Turn{Role: role, Content: content, At: s.UpdatedAt})
	if len(s.turnHistory) > maxTurnHistory {
		s.turnHistory = s.turnHistory[len(s.turnHistory)-maxTurnHistory:]
	}
	if role == "user" {
		s.TurnCount++
	}
}

// RecentTurns 返回最近 n 轮的副本；n<=0 返回全部
func (s *Session) RecentTurns(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.turnHistory
	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}
	out := make([]Turn, len(list))
	copy(out, list)
	return out
}

// HistoryLen 当前保留的轮次数
func (s *Session) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turnHistory)
}

// SetSlot 写入槽位值；返回值是否发生变化（幂等合并依赖此返回值）
func (s *Session) SetSlot(domain, name string, v SlotValue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.slots[domain]
	if !ok {
		ds = make(map[string]SlotValue)
		s.slots[domain] = ds
	}
	if old, exists := ds[name]; exists && old.Equal(v) {
		return false
	}
	ds[name] = v
	s.UpdatedAt = time.Now()
	return true
}

// Slot 读取槽位值
func (s *Session) Slot(domain, name string) (SlotValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.slots[domain][name]
	return v, ok
}

// SlotsCopy 返回指定域槽位表的副本
func (s *Session) SlotsCopy(domain string) map[string]SlotValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds := s.slots[domain]
	if len(ds) == 0 {
		return nil
	}
	out := make(map[string]SlotValue, len(ds))
	for k, v := range ds {
		out[k] = v
	}
	return out
}

// AllSlots 返回全部槽位表副本（快照用）
func (s *Session) AllSlots() map[string]map[string]SlotValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.slots) == 0 {
		return nil
	}
	out := make(map[string]map[string]SlotValue, len(s.slots))
	for d, ds := range s.slots {
		inner := make(map[string]SlotValue, len(ds))
		for k, v := range ds {
			inner[k] = v
		}
		out[d] = inner
	}
	return out
}

// State 读取指定域的对话状态；未设置返回空串
func (s *Session) State(domain string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[domain]
}

// SetState 设置指定域的对话状态
func (s *Session) SetState(domain, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[domain] = state
	s.UpdatedAt = time.Now()
}

// StatesCopy 返回对话状态表副本
func (s *Session) StatesCopy() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.states) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// RollingSummary 当前滚动摘要
func (s *Session) RollingSummary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rollingSummary
}

// FoldHistory 用摘要替换较旧轮次，仅保留最近 keep 轮原文
func (s *Session) FoldHistory(summary string, keep int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollingSummary = summary
	if keep > 0 && len(s.turnHistory) > keep {
		kept := make([]Turn, keep)
		copy(kept, s.turnHistory[len(s.turnHistory)-keep:])
		s.turnHistory = kept
	}
	s.UpdatedAt = time.Now()
}

// Scratch 当前 scratch 上下文
func (s *Session) Scratch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scratch
}

// SetScratch 设置 scratch 上下文（域处理器的中间笔记）
func (s *Session) SetScratch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scratch = text
	s.UpdatedAt = time.Now()
}
