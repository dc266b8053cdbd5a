// Package catalog provides the price catalog behind the pricing engine:
// a postgres-backed store of internal test prices, an optional redis
// read-through cache, and an in-memory implementation for tests.
package catalog

import (
	"context"

	"github.com/benningd54/Anlab/internal/order/pricing"
	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PG struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

func NewPG(pool *pgxpool.Pool, logger *log.Logger) *PG {
	return &PG{pool: pool, log: logger}
}

func (p *PG) FindByCodes(ctx context.Context, codes []string) ([]pricing.Entry, []string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT code, analysis, category, test_group, internal_cost_minor, internal_setup_minor
		FROM test_items
		WHERE active AND code = ANY($1)`, codes)
	if err != nil {
		p.log.Error("failed to query test items", log.Err(err))
		return nil, nil, err
	}
	defer rows.Close()

	found := make(map[string]pricing.Entry)
	for rows.Next() {
		var e pricing.Entry
		if err := rows.Scan(&e.Code, &e.Analysis, &e.Category, &e.Group, &e.InternalCostMinor, &e.InternalSetupMinor); err != nil {
			p.log.Error("failed to scan test item", log.Err(err))
			return nil, nil, err
		}
		found[e.Code] = e
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var entries []pricing.Entry
	var missing []string
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if seen[c] {
			continue
		}
		seen[c] = true
		if e, ok := found[c]; ok {
			entries = append(entries, e)
		} else {
			missing = append(missing, c)
		}
	}
	return entries, missing, nil
}

func (p *PG) ListActive(ctx context.Context) ([]pricing.Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT code, analysis, category, test_group, internal_cost_minor, internal_setup_minor
		FROM test_items
		WHERE active
		ORDER BY category, code`)
	if err != nil {
		p.log.Error("failed to list test items", log.Err(err))
		return nil, err
	}
	defer rows.Close()

	var entries []pricing.Entry
	for rows.Next() {
		var e pricing.Entry
		if err := rows.Scan(&e.Code, &e.Analysis, &e.Category, &e.Group, &e.InternalCostMinor, &e.InternalSetupMinor); err != nil {
			p.log.Error("failed to scan test item", log.Err(err))
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
