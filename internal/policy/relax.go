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
	"fmt"

	"islander-chat/internal/offers"
	"islander-chat/pkg/config"
)

// relax 按配置的有序步骤放宽过滤条件，取第一条可应用的步骤。
// 返回放宽后的条件与面向用户的描述；没有可用步骤时 ok=false。
// 放宽永远显式告知用户，绝不静默。
func relax(f offers.Filters, cfg config.RelaxationConfig) (offers.Filters, string, bool) {
	widenPct := cfg.BudgetWidenPct
	if widenPct <= 0 {
		widenPct = 0.2
	}
	for _, step := range cfg.Steps {
		switch step {
		case "widen_budget":
			if f.BudgetMax > 0 {
				f.BudgetMax = f.BudgetMax * (1 + widenPct)
				if f.BudgetMin > 0 {
					f.BudgetMin = f.BudgetMin * (1 - widenPct)
				}
				return f, fmt.Sprintf("widened the budget by %d%%", int(widenPct*100)), true
			}
		case "drop_bedrooms":
			if f.Bedrooms > 0 {
				f.Bedrooms = 0
				return f, "ignored the bedroom count", true
			}
		case "drop_tenure":
			if f.Tenure != "" {
				f.Tenure = ""
				return f, "included both rentals and sales", true
			}
		}
	}
	return f, "", false
}
