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

package policy

import (
	"context"
	"fmt"
	"strings"

	"islander-chat/internal/offers"
	"islander-chat/internal/session"
	"islander-chat/pkg/config"
	"islander-chat/pkg/log"
)

// OfferQuerier 报盘查询入口（由 offers.Cache 实现）
type OfferQuerier interface {
	Query(ctx context.Context, f offers.Filters) (offers.Summary, error)
}

// Result 一轮策略输出
type Result struct {
	Act             Act              `json:"act"`
	Response        string           `json:"response"`
	Recommendations []offers.Listing `json:"recommendations,omitempty"`
	// Relaxed 本轮被放宽的约束描述；空表示未放宽
	Relaxed string `json:"relaxed,omitempty"`
}

// Engine 按域槽位填充对话策略引擎
type Engine struct {
	domains map[string]config.DomainConfig
	offers  OfferQuerier
	log     *log.Logger
}

// NewEngine 创建策略引擎
func NewEngine(domains map[string]config.DomainConfig, querier OfferQuerier, logger *log.Logger) *Engine {
	return &Engine{domains: domains, offers: querier, log: logger}
}

// builtin 追问模板，可被域配置 prompts["ask_<slot>"] 覆盖
var askPrompts = map[string]string{
	"location": "Which area are you interested in — Kyrenia, Famagusta, Nicosia, or anywhere?",
	"budget":   "What budget do you have in mind?",
	"tenure":   "Are you looking to rent or to buy?",
	"bedrooms": "How many bedrooms do you need?",
	"currency": "Which currency is your budget in?",
}

const genericClarify = "I'm not quite sure what you're after — could you tell me a little more?"

// Respond 执行一轮策略：抽取→合并→状态机→行为决策。
// 报盘路径永不止步于结果本身，总是附带下一个收窄问题。
func (e *Engine) Respond(ctx context.Context, sess *session.Session, domain, text string) Result {
	dc := e.domains[domain]

	if hasTenureConflict(text) {
		return Result{Act: ActClarify, Response: e.prompt(dc, "clarify_tenure",
			"You mentioned both renting and buying — which one is it?")}
	}

	extracted := Extract(text)
	changed := Merge(sess, domain, extracted)

	state := State(sess.State(domain))
	if state == "" {
		state = StateCollecting
		sess.SetState(domain, string(state))
	}

	// OFFERING 状态下的显式确认 → 交接预订
	if state == StateOffering && isConfirmation(text) {
		sess.SetState(domain, string(StateConfirmed))
		return Result{Act: ActAckWithSlots, Response: e.prompt(dc, "confirmed",
			"Great — I'll pass this to our booking team, they'll be in touch shortly.")}
	}

	refined := e.applyRefinement(sess, dc, domain, text)

	missing := missingRequired(sess, domain, dc.Slots)
	viable := minViable(sess, domain, dc.Slots)

	switch {
	case (isOfferQuestion(text) || refined) && viable:
		return e.offer(ctx, sess, dc, domain)
	case isOfferQuestion(text) && !viable:
		slot := nextToAsk(dc.Slots, missing)
		return Result{Act: ActAskSlot, Response: "Before I can check, " + lowerFirst(e.askPrompt(dc, slot))}
	case len(changed) > 0:
		res := Result{Act: ActAckWithSlots, Response: e.ackLine(sess, domain, changed)}
		if len(missing) > 0 {
			res.Response += " " + e.askPrompt(dc, nextToAsk(dc.Slots, missing))
		} else if viable {
			res.Response += " Shall I show you what's available?"
		}
		return res
	case len(missing) > 0:
		return Result{Act: ActAskSlot, Response: e.askPrompt(dc, nextToAsk(dc.Slots, missing))}
	case viable:
		return e.offer(ctx, sess, dc, domain)
	default:
		return Result{Act: ActClarify, Response: e.prompt(dc, "clarify", genericClarify)}
	}
}

// offer 报盘路径：过滤指纹 → 缓存查询 → 零结果放宽一次 → 附带收窄问题
func (e *Engine) offer(ctx context.Context, sess *session.Session, dc config.DomainConfig, domain string) Result {
	filters := filtersFromSlots(sess, domain)
	sum, err := e.offers.Query(ctx, filters)
	if err != nil {
		e.log.Warn("报盘查询失败，降级", "thread_id", sess.ThreadID, "domain", domain, "error", err)
		return Result{Act: ActOfferSummary,
			Response: "I can't check availability right now — " + lowerFirst(e.askPrompt(dc, e.narrowingSlot(sess, dc, domain)))}
	}

	var relaxed string
	if sum.Count == 0 {
		if widened, desc, ok := relax(filters, dc.Relaxation); ok {
			if retried, rerr := e.offers.Query(ctx, widened); rerr == nil {
				sum = retried
				relaxed = desc
			}
		}
	}

	sess.SetState(domain, string(StateOffering))

	// 本轮工作笔记进 scratch，下一轮融合进上下文
	note := fmt.Sprintf("last offer query %s: %d matches", filters.Fingerprint(), sum.Count)
	if relaxed != "" {
		note += "; " + relaxed
	}
	sess.SetScratch(note)

	var b strings.Builder
	switch {
	case sum.Count == 0 && relaxed != "":
		fmt.Fprintf(&b, "No matches even after I %s.", relaxed)
	case sum.Count == 0:
		b.WriteString("I couldn't find any matches for that.")
	default:
		fmt.Fprintf(&b, "I found %d option", sum.Count)
		if sum.Count > 1 {
			b.WriteString("s")
		}
		if loc := filters.Location; loc != "" && loc != "anywhere" {
			fmt.Fprintf(&b, " in %s", loc)
		}
		if sum.PriceMin > 0 {
			fmt.Fprintf(&b, " from %s to %s", formatPrice(sum.PriceMin, sum.Currency), formatPrice(sum.PriceMax, sum.Currency))
		}
		b.WriteString(".")
		if relaxed != "" {
			fmt.Fprintf(&b, " To get there I %s.", relaxed)
		}
	}
	b.WriteString(" ")
	b.WriteString(e.askPrompt(dc, e.narrowingSlot(sess, dc, domain)))

	res := Result{Act: ActOfferSummary, Response: b.String(), Relaxed: relaxed}
	if sum.Count > 0 {
		res.Recommendations = sum.Sample
	}
	return res
}

// applyRefinement 处理细化词（"cheaper"）：按放宽比例下调预算槽位
func (e *Engine) applyRefinement(sess *session.Session, dc config.DomainConfig, domain, text string) bool {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "cheaper") && !strings.Contains(lower, "less expensive") {
		return false
	}
	budget, ok := sess.Slot(domain, "budget")
	if !ok {
		return false
	}
	pct := dc.Relaxation.BudgetWidenPct
	if pct <= 0 {
		pct = 0.2
	}
	switch budget.Kind {
	case session.SlotAmount:
		sess.SetSlot(domain, "budget", session.AmountValue(budget.Amount*(1-pct), budget.Currency))
	case session.SlotRange:
		sess.SetSlot(domain, "budget", session.RangeValue(budget.Low*(1-pct), budget.High*(1-pct)))
	default:
		return false
	}
	return true
}

// ackLine 复述本轮理解到的槽位值
func (e *Engine) ackLine(sess *session.Session, domain string, changed []string) string {
	parts := make([]string, 0, len(changed))
	for _, name := range changed {
		if v, ok := sess.Slot(domain, name); ok {
			parts = append(parts, name+" "+v.String())
		}
	}
	return "Got it: " + strings.Join(parts, ", ") + "."
}

// narrowingSlot 报盘后要继续收窄的下一个槽位：优先未填的必填项，其次追问顺序里未填的软槽位
func (e *Engine) narrowingSlot(sess *session.Session, dc config.DomainConfig, domain string) string {
	if missing := missingRequired(sess, domain, dc.Slots); len(missing) > 0 {
		return nextToAsk(dc.Slots, missing)
	}
	for _, name := range dc.Slots.AskOrder {
		if _, ok := sess.Slot(domain, name); !ok {
			return name
		}
	}
	return "bedrooms"
}

func (e *Engine) askPrompt(dc config.DomainConfig, slot string) string {
	if p := e.prompt(dc, "ask_"+slot, ""); p != "" {
		return p
	}
	if p, ok := askPrompts[slot]; ok {
		return p
	}
	return fmt.Sprintf("Could you tell me the %s?", slot)
}

func (e *Engine) prompt(dc config.DomainConfig, key, fallback string) string {
	if dc.Prompts != nil {
		if p, ok := dc.Prompts[key]; ok && p != "" {
			return p
		}
	}
	return fallback
}

// missingRequired 未满足的必填槽位；"a|b" 表示任一满足即可
func missingRequired(sess *session.Session, domain string, sc config.SlotPolicyConfig) []string {
	var missing []string
	for _, req := range sc.Required {
		if !slotSatisfied(sess, domain, req) {
			missing = append(missing, req)
		}
	}
	return missing
}

// minViable COLLECTING→OFFERING 所需的最小可行槽位集是否满足；未配置时退化为必填集
func minViable(sess *session.Session, domain string, sc config.SlotPolicyConfig) bool {
	set := sc.MinViable
	if len(set) == 0 {
		set = sc.Required
	}
	for _, req := range set {
		if !slotSatisfied(sess, domain, req) {
			return false
		}
	}
	return true
}

func slotSatisfied(sess *session.Session, domain, req string) bool {
	for _, alt := range strings.Split(req, "|") {
		if _, ok := sess.Slot(domain, alt); ok {
			return true
		}
		// "anywhere" 备选：location 槽位值本身为 anywhere 也算满足
		if v, ok := sess.Slot(domain, "location"); ok && strings.EqualFold(v.Text, alt) {
			return true
		}
	}
	return false
}

// nextToAsk 按追问顺序取优先级最高的未填槽位
func nextToAsk(sc config.SlotPolicyConfig, missing []string) string {
	missingSet := make(map[string]struct{}, len(missing))
	for _, m := range missing {
		for _, alt := range strings.Split(m, "|") {
			missingSet[alt] = struct{}{}
		}
	}
	for _, name := range sc.AskOrder {
		if _, ok := missingSet[name]; ok {
			return name
		}
	}
	if len(missing) > 0 {
		return strings.Split(missing[0], "|")[0]
	}
	return ""
}

func hasTenureConflict(text string) bool {
	tokens := tokenize(strings.ToLower(text))
	var rent, sale bool
	for _, tok := range tokens {
		if _, ok := rentWords[tok]; ok {
			rent = true
		}
		if _, ok := saleWords[tok]; ok {
			sale = true
		}
	}
	return rent && sale
}

func filtersFromSlots(sess *session.Session, domain string) offers.Filters {
	f := offers.Filters{Domain: domain}
	if v, ok := sess.Slot(domain, "location"); ok && !strings.EqualFold(v.Text, "anywhere") {
		f.Location = v.Text
	}
	if v, ok := sess.Slot(domain, "budget"); ok {
		switch v.Kind {
		case session.SlotAmount:
			f.BudgetMax = v.Amount
			f.Currency = v.Currency
		case session.SlotRange:
			f.BudgetMin = v.Low
			f.BudgetMax = v.High
		}
	}
	if v, ok := sess.Slot(domain, "currency"); ok && f.Currency == "" {
		f.Currency = v.Enum
	}
	if v, ok := sess.Slot(domain, "bedrooms"); ok {
		f.Bedrooms = v.Count
	}
	if v, ok := sess.Slot(domain, "tenure"); ok {
		f.Tenure = v.Enum
	}
	return f
}

func formatPrice(v float64, currency string) string {
	s := strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.2f", v), "0"), ".0")
	s = strings.TrimSuffix(s, ".")
	if currency != "" {
		return s + " " + currency
	}
	return s
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
