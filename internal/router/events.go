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
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Event 一条带标注的路由事件：原始分 + 事后判定的正确性。
// 正确性由下一轮延续性隐式标注：用户下一轮仍在派发域则视为正确。
type Event struct {
	Raw     float64   `json:"raw"`
	Correct bool      `json:"correct"`
	Domain  string    `json:"domain"`
	Time    time.Time `json:"time"`
}

// EventLog 固定容量滚动窗口；可选追加落盘供离线重校准
type EventLog struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool

	file *os.File
	bw   *bufio.Writer
}

// NewEventLog 创建事件窗口；capacity <= 0 时取 1000，path 为空则不落盘
func NewEventLog(capacity int, path string) (*EventLog, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	l := &EventLog{events: make([]Event, capacity)}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		l.file = f
		l.bw = bufio.NewWriter(f)
	}
	return l, nil
}

// Append 追加一条事件
func (l *EventLog) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[l.next] = ev
	l.next++
	if l.next == len(l.events) {
		l.next = 0
		l.full = true
	}
	if l.bw != nil {
		if data, err := json.Marshal(ev); err == nil {
			l.bw.Write(data)
			l.bw.WriteByte('\n')
		}
	}
}

// Window 返回当前窗口内事件的副本（乱序无妨，拟合与 ECE 都与顺序无关）
func (l *EventLog) Window() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.next
	if l.full {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[:n])
	return out
}

// Len 当前窗口事件数
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.events)
	}
	return l.next
}

// Close 刷新并关闭落盘文件
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bw != nil {
		l.bw.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ReadEventsFile 读取落盘的 JSONL 事件（离线重校准用）
func ReadEventsFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue // 跳过损坏行
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}
