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

package router

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"islander-chat/internal/session"
	"islander-chat/pkg/config"
	"islander-chat/pkg/errors"
	"islander-chat/pkg/log"
	"islander-chat/pkg/metrics"
)

// Router 每轮意图路由：粘性滞后 + 校准阈值决策。
// 校准参数通过 atomic.Pointer 原子换入，进行中的轮次使用开始时的参数集。
type Router struct {
	cfg        config.RouterConfig
	classifier Classifier
	calib      atomic.Pointer[Calibration]
	events     *EventLog
	log        *log.Logger

	refinements map[string][]string // 域 -> 细化词表

	mu      sync.Mutex
	pending map[string]Event // threadID -> 上一轮待标注事件
}

// New 创建路由器；初始校准参数来自配置（或离线重校准文件）
func New(cfg config.RouterConfig, domains map[string]config.DomainConfig, classifier Classifier, events *EventLog, logger *log.Logger) *Router {
	r := &Router{
		cfg:         cfg,
		classifier:  classifier,
		events:      events,
		log:         logger,
		refinements: make(map[string][]string, len(domains)),
		pending:     make(map[string]Event),
	}
	for name, dc := range domains {
		words := make([]string, 0, len(dc.Refinements))
		for _, w := range dc.Refinements {
			words = append(words, strings.ToLower(w))
		}
		r.refinements[name] = words
	}
	init := Calibration{A: cfg.Calibration.A, B: cfg.Calibration.B}
	r.calib.Store(&init)
	return r
}

// Calibration 返回当前生效的校准参数
func (r *Router) Calibration() Calibration {
	return *r.calib.Load()
}

// SwapCalibration 原子换入新校准参数；A 非负时拒绝（破坏单调性）
func (r *Router) SwapCalibration(c Calibration) error {
	if err := c.Valid(); err != nil {
		return err
	}
	r.calib.Store(&c)
	return nil
}

// Classify 对一轮输入做路由决策。分类器失败不崩轮：有粘性域则 stick，否则 clarify，
// 同时返回 ErrClassifierUnavailable 供上层的能力注册表计数。
func (r *Router) Classify(text string, sess *session.Session) (Decision, error) {
	start := time.Now()
	sticky := sess.ActiveDomain
	calib := *r.calib.Load()

	scores, err := r.classifier.Scores(text)
	if err != nil {
		r.log.Warn("分类器不可用，降级", "thread_id", sess.ThreadID, "error", err)
		d := Decision{Action: ActionClarify}
		if sticky != "" {
			d = Decision{Domain: sticky, Action: ActionStick}
		}
		r.finish(sess.ThreadID, d, start, false)
		return d, errors.Wrap(errors.ErrClassifierUnavailable, err.Error())
	}

	top, topScore := topDomain(scores)

	// 延续性规则：极短输入或细化词命中时强偏向粘性域
	if sticky != "" && r.continuity(text, sticky) {
		raw := scores[sticky]
		d := Decision{
			Domain:               sticky,
			RawConfidence:        raw,
			CalibratedConfidence: calib.Apply(raw),
			Action:               ActionStick,
		}
		r.finish(sess.ThreadID, d, start, true)
		return d, nil
	}

	domain := top
	action := ActionDispatch
	raw := topScore
	if sticky != "" {
		if top == sticky || topScore-scores[sticky] < r.cfg.SwitchThreshold {
			domain = sticky
			raw = scores[sticky]
			action = ActionStick
		}
	}
	calibrated := calib.Apply(raw)
	switch {
	case calibrated < r.cfg.ClarifyThreshold:
		// 治理护栏：校准置信度过低时无条件反问
		action = ActionClarify
	case action == ActionDispatch && calibrated < r.cfg.DispatchThreshold:
		if sticky != "" {
			// 回落粘性域时置信度必须跟着换，否则报告的是 top 域的分
			domain = sticky
			raw = scores[sticky]
			calibrated = calib.Apply(raw)
			action = ActionStick
		} else {
			action = ActionClarify
		}
	}

	d := Decision{
		Domain:               domain,
		RawConfidence:        raw,
		CalibratedConfidence: calibrated,
		Action:               action,
	}
	r.finish(sess.ThreadID, d, start, true)
	return d, nil
}

// continuity 极短输入（token 数 < MinTokens）或粘性域细化词命中
func (r *Router) continuity(text, sticky string) bool {
	tokens := Tokenize(text)
	minTokens := r.cfg.MinTokens
	if minTokens <= 0 {
		minTokens = 3
	}
	if len(tokens) < minTokens {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range r.refinements[sticky] {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// finish 记录指标并做隐式事件标注：上一轮派发域若与本轮一致则记为正确
func (r *Router) finish(threadID string, d Decision, start time.Time, record bool) {
	metrics.RouterRequests.WithLabelValues(d.Domain, string(d.Action)).Inc()
	metrics.RouterLatency.WithLabelValues(d.Domain).Observe(time.Since(start).Seconds())
	if d.Domain != "" {
		metrics.RouterConfidence.WithLabelValues(d.Domain).Observe(d.CalibratedConfidence)
	}

	if r.events == nil {
		return
	}
	r.mu.Lock()
	prev, ok := r.pending[threadID]
	if ok {
		prev.Correct = prev.Domain == d.Domain
		r.events.Append(prev)
	}
	if record && d.Action != ActionClarify {
		r.pending[threadID] = Event{Raw: d.RawConfidence, Domain: d.Domain, Time: time.Now()}
		r.gcPendingLocked()
	} else {
		delete(r.pending, threadID)
	}
	r.mu.Unlock()
}

// gcPendingLocked 清理久无后续轮的待标注事件，避免 map 随线程数无界增长；调用方必须持锁
func (r *Router) gcPendingLocked() {
	if len(r.pending) < 4096 {
		return
	}
	cutoff := time.Now().Add(-time.Hour)
	for k, ev := range r.pending {
		if ev.Time.Before(cutoff) {
			delete(r.pending, k)
		}
	}
}

func topDomain(scores map[string]float64) (top string, topScore float64) {
	for name, s := range scores {
		if top == "" || s > topScore || (s == topScore && name < top) {
			top, topScore = name, s
		}
	}
	return top, topScore
}
