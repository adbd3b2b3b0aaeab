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

// Package offers 提供按槽位过滤的库存聚合（报盘摘要）与带 TTL 的结果缓存。
package offers

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Filters 一次报盘查询的过滤条件；零值字段表示不过滤
type Filters struct {
	Domain    string  `json:"domain"`
	Location  string  `json:"location,omitempty"`
	BudgetMin float64 `json:"budget_min,omitempty"`
	BudgetMax float64 `json:"budget_max,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Bedrooms  int     `json:"bedrooms,omitempty"`
	Tenure    string  `json:"tenure,omitempty"` // rent | sale
}

// Fingerprint 过滤条件的规范化指纹；字段顺序固定，大小写与空白不敏感。
// 等价的过滤条件产生相同指纹，用作缓存键。
func (f Filters) Fingerprint() string {
	parts := []string{
		"d=" + canon(f.Domain),
		"l=" + canon(f.Location),
		"bmin=" + strconv.FormatFloat(f.BudgetMin, 'f', 2, 64),
		"bmax=" + strconv.FormatFloat(f.BudgetMax, 'f', 2, 64),
		"c=" + canon(f.Currency),
		"bed=" + strconv.Itoa(f.Bedrooms),
		"t=" + canon(f.Tenure),
	}
	h := fnv.New64a()
	h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s:%016x", canon(f.Domain), h.Sum64())
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Listing 一条库存记录
type Listing struct {
	ID       string  `json:"id"`
	Domain   string  `json:"domain"`
	Title    string  `json:"title"`
	Location string  `json:"location"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Bedrooms int     `json:"bedrooms"`
	Tenure   string  `json:"tenure"`
}

// Summary 报盘聚合结果
type Summary struct {
	Count            int            `json:"count"`
	PriceMin         float64        `json:"price_min"`
	PriceMax         float64        `json:"price_max"`
	Currency         string         `json:"currency"`
	GroupsByLocation map[string]int `json:"groups_by_location"`
	// Sample 最多 3 条代表性记录，价格升序
	Sample []Listing `json:"sample,omitempty"`
}

const maxSample = 3

// Summarize 将命中的库存聚合为摘要
func Summarize(hits []Listing) Summary {
	sum := Summary{GroupsByLocation: make(map[string]int)}
	if len(hits) == 0 {
		return sum
	}
	sorted := make([]Listing, len(hits))
	copy(sorted, hits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	sum.Count = len(sorted)
	sum.PriceMin = sorted[0].Price
	sum.PriceMax = sorted[len(sorted)-1].Price
	sum.Currency = sorted[0].Currency
	for _, l := range sorted {
		sum.GroupsByLocation[canon(l.Location)]++
	}
	n := maxSample
	if len(sorted) < n {
		n = len(sorted)
	}
	sum.Sample = sorted[:n]
	return sum
}

// Matches 判断一条库存是否满足过滤条件
func (f Filters) Matches(l Listing) bool {
	if f.Domain != "" && canon(l.Domain) != canon(f.Domain) {
		return false
	}
	if f.Location != "" && canon(l.Location) != canon(f.Location) {
		return false
	}
	if f.BudgetMin > 0 && l.Price < f.BudgetMin {
		return false
	}
	if f.BudgetMax > 0 && l.Price > f.BudgetMax {
		return false
	}
	if f.Bedrooms > 0 && l.Bedrooms < f.Bedrooms {
		return false
	}
	if f.Tenure != "" && canon(l.Tenure) != canon(f.Tenure) {
		return false
	}
	return true
}
