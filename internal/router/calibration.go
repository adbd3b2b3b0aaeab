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
	"fmt"
	"math"
)

// Calibration Platt 缩放参数：p = 1 / (1 + exp(A*raw + B))。
// A < 0 保证校准后置信度随原始分单调非减。
type Calibration struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Apply 将原始分映射为校准置信度，截断到 [0,1]
func (c Calibration) Apply(raw float64) float64 {
	if raw < 0 {
		raw = 0
	} else if raw > 1 {
		raw = 1
	}
	p := 1 / (1 + math.Exp(c.A*raw+c.B))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Valid 校准参数是否可用于线上
func (c Calibration) Valid() error {
	if c.A >= 0 {
		return fmt.Errorf("calibration A must be negative, got %v", c.A)
	}
	if math.IsNaN(c.A) || math.IsNaN(c.B) || math.IsInf(c.A, 0) || math.IsInf(c.B, 0) {
		return fmt.Errorf("calibration parameters not finite: A=%v B=%v", c.A, c.B)
	}
	return nil
}

// Fit 在标注事件上做梯度下降拟合 Platt 参数；A 投影到负半轴保持单调。
// 事件不足时返回当前参数不变。
func Fit(events []Event, init Calibration) Calibration {
	const minEvents = 50
	if len(events) < minEvents {
		return init
	}
	a, b := init.A, init.B
	if a >= 0 {
		a = -1
	}
	const (
		iterations = 300
		lr         = 0.5
	)
	n := float64(len(events))
	for i := 0; i < iterations; i++ {
		var gradA, gradB float64
		for _, ev := range events {
			p := 1 / (1 + math.Exp(a*ev.Raw+b))
			y := 0.0
			if ev.Correct {
				y = 1
			}
			// logloss 对 z=A*raw+B 的梯度为 (y - p)
			gradA += (y - p) * ev.Raw
			gradB += y - p
		}
		a -= lr * gradA / n
		b -= lr * gradB / n
		if a > -1e-6 {
			a = -1e-6
		}
	}
	return Calibration{A: a, B: b}
}

// ECE 期望校准误差：按校准置信度分 bins 桶，加权平均 |准确率-置信度|
func ECE(events []Event, c Calibration, bins int) float64 {
	if len(events) == 0 || bins <= 0 {
		return 0
	}
	type bin struct {
		conf, acc, n float64
	}
	buckets := make([]bin, bins)
	for _, ev := range events {
		p := c.Apply(ev.Raw)
		idx := int(p * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		buckets[idx].n++
		buckets[idx].conf += p
		if ev.Correct {
			buckets[idx].acc++
		}
	}
	var ece float64
	total := float64(len(events))
	for _, b := range buckets {
		if b.n == 0 {
			continue
		}
		ece += (b.n / total) * math.Abs(b.acc/b.n-b.conf/b.n)
	}
	return ece
}
