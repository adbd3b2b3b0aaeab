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
	"math"
	"strings"
	"unicode"

	"islander-chat/pkg/config"
)

// Classifier 给每个候选域打原始分 [0,1]；失败由调用方降级处理
type Classifier interface {
	Scores(text string) (map[string]float64, error)
}

// LexicalClassifier 词汇线索 + 典型语句词袋余弦的确定性分类器。
// 得分 = 0.6 * 与域内典型语句的余弦相似度 + 0.4 * 线索命中率。
type LexicalClassifier struct {
	domains map[string]*domainProfile
}

type domainProfile struct {
	cues      map[string]struct{}
	exemplars map[string]float64 // 词袋计数
	norm      float64
}

// NewLexicalClassifier 从域配置构建分类器
func NewLexicalClassifier(domains map[string]config.DomainConfig) *LexicalClassifier {
	c := &LexicalClassifier{domains: make(map[string]*domainProfile, len(domains))}
	for name, dc := range domains {
		p := &domainProfile{
			cues:      make(map[string]struct{}, len(dc.Cues)),
			exemplars: make(map[string]float64),
		}
		for _, cue := range dc.Cues {
			p.cues[strings.ToLower(cue)] = struct{}{}
		}
		for _, ex := range dc.Exemplars {
			for _, tok := range Tokenize(ex) {
				p.exemplars[tok]++
			}
		}
		for _, n := range p.exemplars {
			p.norm += n * n
		}
		p.norm = math.Sqrt(p.norm)
		c.domains[name] = p
	}
	return c
}

// Scores 给所有域打分
func (c *LexicalClassifier) Scores(text string) (map[string]float64, error) {
	tokens := Tokenize(text)
	counts := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	var qnorm float64
	for _, n := range counts {
		qnorm += n * n
	}
	qnorm = math.Sqrt(qnorm)

	out := make(map[string]float64, len(c.domains))
	for name, p := range c.domains {
		out[name] = p.score(tokens, counts, qnorm)
	}
	return out, nil
}

func (p *domainProfile) score(tokens []string, counts map[string]float64, qnorm float64) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var cueHits float64
	for _, tok := range tokens {
		if _, ok := p.cues[tok]; ok {
			cueHits++
		}
	}
	cueScore := cueHits / float64(len(tokens))
	if cueScore > 1 {
		cueScore = 1
	}

	var dot float64
	for tok, n := range counts {
		dot += n * p.exemplars[tok]
	}
	var cos float64
	if qnorm > 0 && p.norm > 0 {
		cos = dot / (qnorm * p.norm)
	}

	s := 0.6*cos + 0.4*cueScore
	if s > 1 {
		s = 1
	}
	return s
}

// Tokenize 小写化并按非字母数字切分
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
