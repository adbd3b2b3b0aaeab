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

import "strings"

// Act 对话行为；每轮恰好一个
type Act string

const (
	ActAskSlot      Act = "ASK_SLOT"
	ActAckWithSlots Act = "ACK_WITH_SLOTS"
	ActOfferSummary Act = "OFFER_SUMMARY"
	ActClarify      Act = "CLARIFY"
)

// State 域内对话状态机状态
type State string

const (
	StateCollecting State = "collecting"
	StateOffering   State = "offering"
	StateConfirmed  State = "confirmed"
)

// offerPatterns 库存/可用性问题的确定性匹配模式
var offerPatterns = []string{
	"what do you have",
	"what have you got",
	"what's available",
	"whats available",
	"what is available",
	"anything available",
	"any options",
	"show me",
	"any listings",
	"what can you offer",
	"availability",
	"how many",
}

// confirmPatterns 预订交接确认词表（OFFERING → CONFIRMED）
var confirmPatterns = []string{
	"book it",
	"book that",
	"i'll take it",
	"ill take it",
	"take it",
	"yes please",
	"go ahead",
	"confirm",
	"reserve it",
	"sounds good, book",
}

// isOfferQuestion 用户是否在问库存/可用性
func isOfferQuestion(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range offerPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// isConfirmation 用户是否在确认/要求预订
func isConfirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range confirmPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
