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

package memorystore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"islander-chat/pkg/errors"
	"islander-chat/pkg/log"
)

// HTTPStore 远端记忆服务客户端；写入与召回都受客户端限速约束
type HTTPStore struct {
	baseURL string
	client  *resty.Client
	limiter *rate.Limiter
	log     *log.Logger
}

// NewHTTPStore 创建远端记忆服务客户端
func NewHTTPStore(baseURL string, timeout time.Duration, rps float64, logger *log.Logger) *HTTPStore {
	if rps <= 0 {
		rps = 10
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(200 * time.Millisecond)
	client.SetRetryMaxWaitTime(1 * time.Second)

	return &HTTPStore{
		baseURL: baseURL,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:     logger,
	}
}

// Recall 调用远端 GET /v1/memory 召回片段；超时归一化为 ErrMemoryTimeout
func (s *HTTPStore) Recall(ctx context.Context, userID, domain, query string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = 3
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrMemoryTimeout, "recall rate wait")
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user_id": userID,
			"domain":  domain,
			"query":   query,
			"limit":   strconv.Itoa(limit),
		}).
		Get(s.baseURL + "/v1/memory")
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrMemoryTimeout, "recall")
		}
		return nil, fmt.Errorf("recall request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("recall status %d: %s", resp.StatusCode(), resp.String())
	}

	var result struct {
		Snippets []Snippet `json:"snippets"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("recall decode: %w", err)
	}
	return result.Snippets, nil
}

// Write 调用远端 POST /v1/memory 写入片段
func (s *HTTPStore) Write(ctx context.Context, snip Snippet) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrMemoryTimeout, "write rate wait")
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(snip).
		Post(s.baseURL + "/v1/memory")
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return errors.Wrap(errors.ErrMemoryTimeout, "write")
		}
		return fmt.Errorf("write request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("write status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Close 实现 Store
func (s *HTTPStore) Close() error { return nil }
