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

package offers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgInventory Postgres 库存后端，表 chat_listings
type PgInventory struct {
	pool *pgxpool.Pool
}

// NewPgInventory 创建基于 PostgreSQL 的库存后端
func NewPgInventory(ctx context.Context, dsn string) (*PgInventory, error) {
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
	return &PgInventory{pool: pool}, nil
}

// Query 过滤并取回命中记录，聚合在进程内完成（样本与分组共用一次扫描）
func (p *PgInventory) Query(ctx context.Context, f Filters) (Summary, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Domain != "" {
		add("lower(domain) = $%d", canon(f.Domain))
	}
	if f.Location != "" {
		add("lower(location) = $%d", canon(f.Location))
	}
	if f.BudgetMin > 0 {
		add("price >= $%d", f.BudgetMin)
	}
	if f.BudgetMax > 0 {
		add("price <= $%d", f.BudgetMax)
	}
	if f.Bedrooms > 0 {
		add("bedrooms >= $%d", f.Bedrooms)
	}
	if f.Tenure != "" {
		add("lower(tenure) = $%d", canon(f.Tenure))
	}

	query := `SELECT id, domain, title, location, price, currency, bedrooms, tenure FROM chat_listings`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY price ASC LIMIT 500"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	var hits []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.Domain, &l.Title, &l.Location, &l.Price, &l.Currency, &l.Bedrooms, &l.Tenure); err != nil {
			return Summary{}, err
		}
		hits = append(hits, l)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	return Summarize(hits), nil
}

// Close 关闭连接池
func (p *PgInventory) Close() error {
	p.pool.Close()
	return nil
}
