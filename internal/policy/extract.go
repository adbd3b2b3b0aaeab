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

// Package policy 按域槽位填充对话策略：抽取、合并、对话行为分类与状态机。
package policy

import (
	"regexp"
	"strconv"
	"strings"

	"islander-chat/internal/session"
)

// locationSynonyms 地名同义词规范化表（北塞常用地名，含土/英写法）
var locationSynonyms = map[string]string{
	"kyrenia":    "Kyrenia",
	"girne":      "Kyrenia",
	"famagusta":  "Famagusta",
	"gazimagusa": "Famagusta",
	"magusa":     "Famagusta",
	"nicosia":    "Nicosia",
	"lefkosa":    "Nicosia",
	"iskele":     "Iskele",
	"esentepe":   "Esentepe",
	"alsancak":   "Alsancak",
	"lapta":      "Lapta",
	"catalkoy":   "Catalkoy",
	"anywhere":   "anywhere",
}

// currencySymbols 货币符号与词汇规范化表
var currencySymbols = map[string]string{
	"£": "GBP", "gbp": "GBP", "pound": "GBP", "pounds": "GBP", "sterling": "GBP",
	"$": "USD", "usd": "USD", "dollar": "USD", "dollars": "USD",
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"₺": "TRY", "tl": "TRY", "lira": "TRY",
}

var rentWords = map[string]struct{}{
	"rent": {}, "rental": {}, "renting": {}, "let": {}, "monthly": {}, "tenancy": {},
}

var saleWords = map[string]struct{}{
	"buy": {}, "buying": {}, "sale": {}, "purchase": {}, "purchasing": {}, "own": {},
}

var (
	rangeRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)`)
	numberRe   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	bedroomsRe = regexp.MustCompile(`(\d+)\s*(?:\+\s*1)?\s*(?:bed(?:room)?s?|br\b)`)
	planRe     = regexp.MustCompile(`(\d+)\s*\+\s*1`) // 本地common写法 "2+1"
)

// Extract 从一轮文本抽取类型化槽位值；抽不到的槽位不出现在结果中
func Extract(text string) map[string]session.SlotValue {
	out := make(map[string]session.SlotValue)
	lower := strings.ToLower(text)
	tokens := tokenize(lower)

	if loc, ok := extractLocation(tokens); ok {
		out["location"] = loc
	}
	currency, hasCurrency := extractCurrency(lower, tokens)

	if m := rangeRe.FindStringSubmatch(lower); m != nil {
		low, _ := strconv.ParseFloat(m[1], 64)
		high, _ := strconv.ParseFloat(m[2], 64)
		if low > high {
			low, high = high, low
		}
		out["budget"] = session.RangeValue(low, high)
		if hasCurrency {
			out["currency"] = session.EnumValue(currency)
		}
	} else if hasCurrency {
		// 预算金额只在货币同现时抽取，避免把卧室数当预算
		if amount, ok := amountNear(lower); ok {
			out["budget"] = session.AmountValue(amount, currency)
			out["currency"] = session.EnumValue(currency)
		}
	}

	if beds, ok := extractBedrooms(lower); ok {
		out["bedrooms"] = session.CountValue(beds)
	}
	if tenure, ok := extractTenure(tokens); ok {
		out["tenure"] = session.EnumValue(tenure)
	}
	return out
}

func extractLocation(tokens []string) (session.SlotValue, bool) {
	for _, tok := range tokens {
		if norm, ok := locationSynonyms[tok]; ok {
			return session.TextValue(norm), true
		}
	}
	return session.SlotValue{}, false
}

func extractCurrency(lower string, tokens []string) (string, bool) {
	for sym, code := range currencySymbols {
		if len(sym) == 1 || !isWord(sym) {
			if strings.Contains(lower, sym) {
				return code, true
			}
		}
	}
	for _, tok := range tokens {
		if code, ok := currencySymbols[tok]; ok {
			return code, true
		}
	}
	return "", false
}

// amountNear 取文本中的第一个数字作为金额（已确认货币同现）
func amountNear(lower string) (float64, bool) {
	// 排除卧室表达里的数字
	cleaned := bedroomsRe.ReplaceAllString(lower, "")
	cleaned = planRe.ReplaceAllString(cleaned, "")
	m := numberRe.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractBedrooms(lower string) (int, bool) {
	if strings.Contains(lower, "studio") {
		return 0, true
	}
	if m := bedroomsRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	if m := planRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func extractTenure(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if _, ok := rentWords[tok]; ok {
			return "rent", true
		}
		if _, ok := saleWords[tok]; ok {
			return "sale", true
		}
	}
	return "", false
}

func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func isWord(s string) bool {
	for _, r := range s {
		if !('a' <= r && r <= 'z') {
			return false
		}
	}
	return true
}

// Merge 把抽取结果并入会话：加性且幂等，沉默不清除既有值。
// 返回本轮实际变化的槽位名（有序，供 ACK 文案使用）。
func Merge(sess *session.Session, domain string, extracted map[string]session.SlotValue) []string {
	order := []string{"location", "budget", "currency", "bedrooms", "tenure"}
	var changed []string
	for _, name := range order {
		v, ok := extracted[name]
		if !ok {
			continue
		}
		if sess.SetSlot(domain, name, v) {
			changed = append(changed, name)
		}
	}
	for name, v := range extracted {
		if contains(order, name) {
			continue
		}
		if sess.SetSlot(domain, name, v) {
			changed = append(changed, name)
		}
	}
	return changed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
