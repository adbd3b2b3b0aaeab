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
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"islander-chat/pkg/errors"
)

// PgStore Postgres 实现
//
// 表结构：
//
//	CREATE TABLE chat_long_term_memory (
//	    id         TEXT PRIMARY KEY,
//	    user_id    TEXT NOT NULL,
//	    domain     TEXT NOT NULL,
//	    content    TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX idx_cltm_user_domain ON chat_long_term_memory (user_id, domain, updated_at DESC);
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的长期记忆存储
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

// Recall 按用户与领域召回片段；query 仅做简单包含过滤，空则不过滤
func (s *PgStore) Recall(ctx context.Context, userID, domain, query string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = 3
	}
	var rows pgx.Rows
	var err error
	if query != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT id, user_id, domain, content, updated_at FROM chat_long_term_memory
			 WHERE user_id = $1 AND domain = $2 AND content ILIKE '%' || $3 || '%'
			 ORDER BY updated_at DESC LIMIT $4`,
			userID, domain, query, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, user_id, domain, content, updated_at FROM chat_long_term_memory
			 WHERE user_id = $1 AND domain = $2
			 ORDER BY updated_at DESC LIMIT $3`,
			userID, domain, limit)
	}
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrMemoryTimeout, "recall")
		}
		return nil, err
	}
	defer rows.Close()
	var out []Snippet
	for rows.Next() {
		var snip Snippet
		if err := rows.Scan(&snip.ID, &snip.UserID, &snip.Domain, &snip.Content, &snip.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, snip)
	}
	return out, rows.Err()
}

// Write 写入或更新片段
func (s *PgStore) Write(ctx context.Context, snip Snippet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_long_term_memory (id, user_id, domain, content, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE SET content = $4, updated_at = now()`,
		snip.ID, snip.UserID, snip.Domain, snip.Content)
	return err
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
