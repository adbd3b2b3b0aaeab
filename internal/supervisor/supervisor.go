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
	"fmt"
	"time"

	"github.com/google/uuid"

	"islander-chat/internal/contextflow"
	"islander-chat/internal/memorystore"
	"islander-chat/internal/offers"
	"islander-chat/internal/policy"
	"islander-chat/internal/router"
	"islander-chat/internal/session"
	"islander-chat/pkg/config"
	"islander-chat/pkg/log"
	"islander-chat/pkg/metrics"
	"islander-chat/pkg/tracing"
)

// Turn 一条入站轮次（传输层交付）
type Turn struct {
	ThreadID string    `json:"thread_id"`
	UserID   string    `json:"user_id"`
	Text     string    `json:"message"`
	At       time.Time `json:"at"`
}

// Result 单轮编排输出（回给传输层）
type Result struct {
	ResponseText         string           `json:"response_text"`
	DialogueAct          string           `json:"dialogue_act"`
	Recommendations      []offers.Listing `json:"recommendations,omitempty"`
	Domain               string           `json:"domain,omitempty"`
	CalibratedConfidence float64          `json:"calibrated_confidence"`
	TokenUsage           int              `json:"token_usage"`
}

const (
	genericClarify  = "I can help with properties and car hire here — what are you looking for?"
	genericFallback = "That part of the service is temporarily unavailable. Is there something else I can help with?"
)

// Supervisor 顶层按轮协调器：路由 → 上下文 → 策略 → 快照。
// 同一 thread 串行（session.Manager 锁），不同 thread 完全并发。
type Supervisor struct {
	cfg       config.SupervisorConfig
	sessions  *session.Manager
	router    *router.Router
	contexts  *contextflow.Manager
	policy    *policy.Engine
	memory    memorystore.Store
	registry  *CapabilityRegistry
	followups *FollowupQueue
	log       *log.Logger

	turnTimeout time.Duration
}

// New 创建 Supervisor；memory 应当已由 GuardMemory 包上熔断
func New(cfg config.SupervisorConfig, sessions *session.Manager, rt *router.Router,
	contexts *contextflow.Manager, engine *policy.Engine, memory memorystore.Store,
	registry *CapabilityRegistry, followups *FollowupQueue, logger *log.Logger) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		sessions:    sessions,
		router:      rt,
		contexts:    contexts,
		policy:      engine,
		memory:      memory,
		registry:    registry,
		followups:   followups,
		log:         logger,
		turnTimeout: config.ParseDuration(cfg.TurnTimeout, 15*time.Second),
	}
}

// HandleTurn 编排一轮。传输层断连不打断处理：整轮在脱离取消的 context 上
// 完成并落快照，响应投递本来就是尽力而为。
func (s *Supervisor) HandleTurn(ctx context.Context, turn Turn) (Result, error) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)
	defer cancel()

	sess, release := s.sessions.Acquire(tctx, turn.ThreadID, turn.UserID)
	defer release()

	tctx, span := tracing.StartTurnSpan(tctx, turn.ThreadID, sess.ActiveDomain)
	defer span.End()

	decision, classifyErr := s.router.Classify(turn.Text, sess)
	if classifyErr != nil {
		s.registry.ReportFailure(capabilityKey(decision.Domain))
	} else {
		s.registry.ReportSuccess(capabilityKey(decision.Domain))
	}

	sess.AppendTurn("user", turn.Text)
	s.contexts.SummarizeIfDue(sess)

	fc := s.contexts.Fuse(tctx, sess, turn.Text)
	fc = s.contexts.EnforceBudget(fc, sess)
	sess.TokenEstimate = fc.TokenEstimate

	res := s.respond(tctx, sess, decision, turn)
	res.TokenUsage = fc.TokenEstimate

	sess.AppendTurn("assistant", res.ResponseText)
	sess.RawConfidence = decision.RawConfidence
	sess.CalibratedConfidence = decision.CalibratedConfidence

	// 快照写入先于锁释放：下一轮与重连恢复永远看到本轮之后的状态
	if err := s.sessions.Checkpoint(tctx, sess); err != nil {
		s.log.Error("快照写入失败", "thread_id", turn.ThreadID, "error", err)
	}

	metrics.TurnDuration.WithLabelValues(labelOr(res.Domain, "none")).Observe(time.Since(start).Seconds())
	return res, nil
}

func (s *Supervisor) respond(ctx context.Context, sess *session.Session, decision router.Decision, turn Turn) Result {
	if decision.Action == router.ActionClarify || decision.Domain == "" {
		return Result{
			ResponseText:         genericClarify,
			DialogueAct:          string(policy.ActClarify),
			Domain:               decision.Domain,
			CalibratedConfidence: decision.CalibratedConfidence,
		}
	}
	if !s.registry.Dispatchable(capabilityKey(decision.Domain)) {
		return Result{
			ResponseText:         genericFallback,
			DialogueAct:          string(policy.ActClarify),
			Domain:               decision.Domain,
			CalibratedConfidence: decision.CalibratedConfidence,
		}
	}

	sess.ActiveDomain = decision.Domain
	sess.CurrentIntent = decision.Domain + "_search"

	pres := s.policy.Respond(ctx, sess, decision.Domain, turn.Text)
	s.enqueueMemoryWrite(sess, turn)

	return Result{
		ResponseText:         pres.Response,
		DialogueAct:          string(pres.Act),
		Recommendations:      pres.Recommendations,
		Domain:               decision.Domain,
		CalibratedConfidence: decision.CalibratedConfidence,
	}
}

// enqueueMemoryWrite 把本轮用户偏好异步写入长期记忆（幂等键 = thread+轮次）
func (s *Supervisor) enqueueMemoryWrite(sess *session.Session, turn Turn) {
	if s.followups == nil || turn.Text == "" {
		return
	}
	snip := memorystore.Snippet{
		ID:      uuid.NewString(),
		UserID:  turn.UserID,
		Domain:  sess.ActiveDomain,
		Content: turn.Text,
	}
	key := fmt.Sprintf("memwrite:%s:%d", sess.ThreadID, sess.TurnCount)
	s.followups.Enqueue(FollowupTask{
		Key: key,
		Run: func(ctx context.Context) error {
			return s.memory.Write(ctx, snip)
		},
	})
}

// Close 关闭会话管理器（含快照存储）
func (s *Supervisor) Close() error {
	return s.sessions.Close()
}

func capabilityKey(domain string) string {
	if domain == "" {
		return "router"
	}
	return domain
}

func labelOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
