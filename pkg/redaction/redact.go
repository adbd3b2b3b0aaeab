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

// Package redaction 对话文本脱敏：滚动摘要持久化前抹去 email/电话/URL
package redaction

import (
	"regexp"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[\s\-.]?)?(?:\(\d{2,4}\)[\s\-.]?)?\d{3}[\s\-.]?\d{2,4}[\s\-.]?\d{2,4}`)
	urlPattern   = regexp.MustCompile(`(?:https?://|www\.)[^\s]+`)
)

// Redactor 文本脱敏器；零值不可用，必须经 NewRedactor 创建
type Redactor struct {
	rules []rule
}

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewRedactor 创建默认脱敏器（email / 电话 / URL）
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			{emailPattern, "[email]"},
			{urlPattern, "[url]"},
			{phonePattern, "[phone]"},
		},
	}
}

// Redact 返回脱敏后的文本；顺序固定：email → url → 电话，电话规则最宽放最后
func (r *Redactor) Redact(s string) string {
	for _, ru := range r.rules {
		s = ru.pattern.ReplaceAllString(s, ru.replacement)
	}
	return s
}
