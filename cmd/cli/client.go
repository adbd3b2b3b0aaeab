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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("ICHAT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

// turnReply 对话接口 /api/chat 的响应体
type turnReply struct {
	ResponseText         string  `json:"response_text"`
	DialogueAct          string  `json:"dialogue_act"`
	Domain               string  `json:"domain"`
	CalibratedConfidence float64 `json:"calibrated_confidence"`
	TokenUsage           int     `json:"token_usage"`
}

// sendTurn 向编排服务提交一轮用户输入
func sendTurn(baseURL, threadID, userID, message string) (*turnReply, error) {
	var out turnReply
	resp, err := newClient(baseURL).R().
		SetBody(map[string]string{
			"thread_id": threadID,
			"user_id":   userID,
			"message":   message,
		}).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/chat: %s", resp.String())
	}
	return &out, nil
}

// getHealth 查询服务健康状态与各领域能力状态
func getHealth(baseURL string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient(baseURL).R().
		SetResult(&out).
		Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/health: %s", resp.String())
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
