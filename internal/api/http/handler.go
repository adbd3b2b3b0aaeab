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

package http

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"islander-chat/internal/supervisor"
	"islander-chat/pkg/log"
	"islander-chat/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	sup      *supervisor.Supervisor
	registry *supervisor.CapabilityRegistry
	logger   *log.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(sup *supervisor.Supervisor, registry *supervisor.CapabilityRegistry, logger *log.Logger) *Handler {
	return &Handler{sup: sup, registry: registry, logger: logger}
}

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
}

// Chat 处理一轮对话
// POST /api/chat
func (h *Handler) Chat(c context.Context, ctx *app.RequestContext) {
	var req chatRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	req.Message = strings.TrimSpace(req.Message)
	if req.ThreadID == "" || req.Message == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "thread_id and message are required",
		})
		return
	}

	res, err := h.sup.HandleTurn(c, supervisor.Turn{
		ThreadID: req.ThreadID,
		UserID:   req.UserID,
		Text:     req.Message,
		At:       time.Now(),
	})
	if err != nil {
		h.logger.Error("处理对话轮次失败", "thread_id", req.ThreadID, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
		return
	}
	ctx.JSON(consts.StatusOK, res)
}

// Health 健康检查：返回各业务域的派发健康状态
// GET /api/health
func (h *Handler) Health(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":       "ok",
		"capabilities": h.registry.States(),
		"timestamp":    time.Now().Unix(),
	})
}

// Metrics Prometheus 指标导出
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
