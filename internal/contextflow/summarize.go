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
	"strings"

	"islander-chat/internal/session"
	"islander-chat/pkg/redaction"
)

// Summarizer 确定性句子截断摘要：每轮取首句，PII 脱敏，整体截断到字符上限
type Summarizer struct {
	redactor *redaction.Redactor
	maxChars int
}

// NewSummarizer 创建摘要器；maxChars <= 0 时取 500
func NewSummarizer(redactor *redaction.Redactor, maxChars int) *Summarizer {
	if maxChars <= 0 {
		maxChars = 500
	}
	return &Summarizer{redactor: redactor, maxChars: maxChars}
}

// Summarize 将若干轮压缩为一段摘要；prior 为既有滚动摘要，置于新内容之前
func (s *Summarizer) Summarize(prior string, turns []session.Turn) string {
	var b strings.Builder
	if prior != "" {
		b.WriteString(prior)
	}
	for _, t := range turns {
		line := firstSentence(t.Content)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(line)
		b.WriteString(".")
	}
	out := s.redactor.Redact(b.String())
	return truncateChars(out, s.maxChars)
}

// firstSentence 取首句（句号/问号/感叹号边界），去掉首尾空白
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '?' || r == '!' || r == '\n' {
			return strings.TrimSpace(text[:i])
		}
	}
	return text
}

// truncateChars 按字节截断并保持 UTF-8 合法
func truncateChars(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	for len(cut) > 0 && !utf8Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func utf8Valid(s string) bool {
	return strings.ToValidUTF8(s, "") == s
}
