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

package contextflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"islander-chat/internal/memorystore"
	"islander-chat/internal/session"
	"islander-chat/pkg/config"
	"islander-chat/pkg/log"
	"islander-chat/pkg/metrics"
	"islander-chat/pkg/redaction"
)

// FusedContext 融合后的上下文分段；Render 时最近原文轮在最后，
// 截断策略因此总是先丢长期召回。
type FusedContext struct {
	Recall      []string
	Summary     string
	SlotLines   []string
	Scratch     string
	RecentTurns []string

	TokenEstimate int
}

// Manager 上下文生命周期管理器
type Manager struct {
	cfg        config.ContextConfig
	memory     memorystore.Store
	estimator  Estimator
	summarizer *Summarizer
	log        *log.Logger

	recallTimeout time.Duration
}

// NewManager 创建上下文管理器；estimator 为 nil 时用 chars/4 启发式
func NewManager(cfg config.ContextConfig, memory memorystore.Store, estimator Estimator, logger *log.Logger, recallTimeout time.Duration) *Manager {
	if estimator == nil {
		estimator = HeuristicEstimator{}
	}
	if recallTimeout <= 0 {
		recallTimeout = 3 * time.Second
	}
	return &Manager{
		cfg:           cfg,
		memory:        memory,
		estimator:     estimator,
		summarizer:    NewSummarizer(redaction.NewRedactor(), cfg.SummaryMaxChars),
		log:           logger,
		recallTimeout: recallTimeout,
	}
}

// Fuse 按优先序融合：长期召回、滚动摘要、槽位状态、scratch、最近 N 轮原文。
// 召回失败只降级（跳过长期记忆），不影响本轮。
func (m *Manager) Fuse(ctx context.Context, sess *session.Session, query string) *FusedContext {
	start := time.Now()
	defer func() {
		metrics.ContextFuseLatency.Observe(time.Since(start).Seconds())
	}()

	fc := &FusedContext{
		Summary: sess.RollingSummary(),
		Scratch: sess.Scratch(),
	}

	// 长期召回走网络，和本地分段装配并行
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fc.Recall = m.recall(gctx, sess, query)
		return nil
	})
	fc.SlotLines = slotLines(sess)

	lastN := m.cfg.LastN
	if lastN <= 0 {
		lastN = 5
	}
	for _, t := range sess.RecentTurns(lastN) {
		fc.RecentTurns = append(fc.RecentTurns, t.Role+": "+t.Content)
	}
	_ = g.Wait()

	fc.TokenEstimate = m.estimator.Estimate(fc.Render())
	return fc
}

func (m *Manager) recall(ctx context.Context, sess *session.Session, query string) []string {
	limit := m.cfg.RecallMaxSnippets
	if limit <= 0 {
		limit = 3
	}
	rctx, cancel := context.WithTimeout(ctx, m.recallTimeout)
	defer cancel()
	snips, err := m.memory.Recall(rctx, sess.UserID, sess.ActiveDomain, query, limit)
	if err != nil {
		m.log.Warn("长期记忆召回失败，跳过", "thread_id", sess.ThreadID, "error", err)
		return nil
	}
	out := make([]string, 0, len(snips))
	for _, s := range snips {
		out = append(out, s.Content)
	}
	return out
}

func slotLines(sess *session.Session) []string {
	domain := sess.ActiveDomain
	if domain == "" {
		return nil
	}
	slots := sess.SlotsCopy(domain)
	if len(slots) == 0 {
		return nil
	}
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s=%s", name, slots[name].String()))
	}
	return out
}

// Render 拼接为单个上下文字符串；最近原文轮永远在最后
func (fc *FusedContext) Render() string {
	var sections []string
	if len(fc.Recall) > 0 {
		sections = append(sections, "[memory]\n"+strings.Join(fc.Recall, "\n"))
	}
	if fc.Summary != "" {
		sections = append(sections, "[summary]\n"+fc.Summary)
	}
	if len(fc.SlotLines) > 0 {
		sections = append(sections, "[slots]\n"+strings.Join(fc.SlotLines, "\n"))
	}
	if fc.Scratch != "" {
		sections = append(sections, "[scratch]\n"+fc.Scratch)
	}
	if len(fc.RecentTurns) > 0 {
		sections = append(sections, "[recent]\n"+strings.Join(fc.RecentTurns, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

// SummarizeIfDue 固定节奏滚动摘要：每 SummaryEvery 轮触发一次，
// 最近 KeepVerbatim 轮始终保留原文。
func (m *Manager) SummarizeIfDue(sess *session.Session) {
	every := m.cfg.SummaryEvery
	if every <= 0 {
		every = 10
	}
	if sess.TurnCount == 0 || sess.TurnCount%every != 0 {
		return
	}
	keep := m.cfg.KeepVerbatim
	if keep <= 0 {
		keep = 5
	}
	total := sess.HistoryLen()
	if total <= keep {
		return
	}
	older := sess.RecentTurns(total)[:total-keep]
	summary := m.summarizer.Summarize(sess.RollingSummary(), older)
	sess.FoldHistory(summary, keep)
	metrics.SummarizeTotal.Inc()
}
