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
	"islander-chat/internal/session"
	"islander-chat/pkg/metrics"
)

// 预算执行中摘要替换保留的最近轮数
const budgetKeepTurns = 6

// EnforceBudget 渐进式裁剪，每步后重测，達标即停：
//  1. 长期召回减半
//  2. 最后 6 轮之外的历史替换为确定性摘要
//  3. scratch 截断到字符上限
//
// 三步之后仍超预算则记警告并继续，绝不阻塞本轮。
func (m *Manager) EnforceBudget(fc *FusedContext, sess *session.Session) *FusedContext {
	maxTokens := m.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	measure := func() bool {
		fc.TokenEstimate = m.estimator.Estimate(fc.Render())
		return fc.TokenEstimate <= maxTokens
	}
	if measure() {
		return fc
	}

	// 步骤 1：召回减半
	if len(fc.Recall) > 0 {
		fc.Recall = fc.Recall[:len(fc.Recall)/2]
		metrics.BudgetTrimSteps.WithLabelValues("halve_recall").Inc()
		if measure() {
			return fc
		}
	}

	// 步骤 2：最后 6 轮之外替换为摘要
	if len(fc.RecentTurns) > budgetKeepTurns {
		older := historyTurns(fc.RecentTurns[:len(fc.RecentTurns)-budgetKeepTurns])
		fc.Summary = m.summarizer.Summarize(fc.Summary, older)
		fc.RecentTurns = fc.RecentTurns[len(fc.RecentTurns)-budgetKeepTurns:]
		metrics.BudgetTrimSteps.WithLabelValues("summarize_history").Inc()
		if measure() {
			return fc
		}
	}

	// 步骤 3：scratch 截断
	maxScratch := m.cfg.ScratchMaxChars
	if maxScratch <= 0 {
		maxScratch = 500
	}
	if len(fc.Scratch) > maxScratch {
		fc.Scratch = truncateChars(fc.Scratch, maxScratch)
		metrics.BudgetTrimSteps.WithLabelValues("truncate_scratch").Inc()
		if measure() {
			return fc
		}
	}

	metrics.BudgetExceededTotal.Inc()
	m.log.Warn("裁剪后仍超 token 预算，继续处理",
		"thread_id", sess.ThreadID, "estimate", fc.TokenEstimate, "max_tokens", maxTokens)
	return fc
}

// historyTurns 将已渲染的 "role: content" 行还原为 Turn 供摘要器使用
func historyTurns(lines []string) []session.Turn {
	out := make([]session.Turn, 0, len(lines))
	for _, line := range lines {
		role, content := splitTurnLine(line)
		out = append(out, session.Turn{Role: role, Content: content})
	}
	return out
}

func splitTurnLine(line string) (role, content string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			role = line[:i]
			content = line[i+1:]
			if len(content) > 0 && content[0] == ' ' {
				content = content[1:]
			}
			return role, content
		}
	}
	return "user", line
}
