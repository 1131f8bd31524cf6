package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cashdesk/internal/app"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/rbac"
)

func main() {
	schema := flag.String("schema", "migrations/0001_cashdesk.up.sql", "schema file applied before seeding; empty skips it")
	revenue := flag.String("daily-revenue", "10000.00", "first day's revenue in major units")
	growth := flag.String("daily-growth", "250.00", "revenue added per day in major units")
	expense := flag.String("expense", "3500.00", "one-off OpEx expense per branch in major units")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	var plan seedPlan
	for _, f := range []struct {
		name string
		raw  string
		dst  *money.Amount
	}{
		{"daily-revenue", *revenue, &plan.revenue},
		{"daily-growth", *growth, &plan.growth},
		{"expense", *expense, &plan.expense},
	} {
		if *f.dst, err = money.Parse(f.raw, cfg.MoneyScale); err != nil {
			log.Fatalf("-%s: %v", f.name, err)
		}
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if *schema != "" {
		fmt.Println("→ Applying schema...")
		sql, err := os.ReadFile(*schema)
		if err != nil {
			log.Fatalf("read schema: %v", err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
	}

	fmt.Println("→ Seeding branches and roles...")
	if err := seedDirectory(ctx, pool); err != nil {
		log.Fatalf("seed directory: %v", err)
	}
	fmt.Println("→ Seeding transactions...")
	if err := seedTransactions(ctx, pool, plan); err != nil {
		log.Fatalf("seed transactions: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// seedDirectory creates two branches, the two cash desk roles and the expense type registry.
// User 1 operates the branches, user 2 is the general manager.
func seedDirectory(ctx context.Context, pool *pgxpool.Pool) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO branches (code, name) VALUES ('JKT01', 'Jakarta Pusat'), ('BDG01', 'Bandung Dago')
ON CONFLICT (code) DO NOTHING`)
	for _, role := range []rbac.Role{rbac.RoleBranchOperator, rbac.RoleGeneralManager} {
		batch.Queue(`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, string(role))
	}
	batch.Queue(`INSERT INTO user_roles (user_id, role_id) SELECT 1, id FROM roles WHERE name = $1 ON CONFLICT DO NOTHING`, string(rbac.RoleBranchOperator))
	batch.Queue(`INSERT INTO user_roles (user_id, role_id) SELECT 2, id FROM roles WHERE name = $1 ON CONFLICT DO NOTHING`, string(rbac.RoleGeneralManager))
	for _, name := range []string{"Supplies", "Repairs", "Owner withdrawal", "Staff welfare"} {
		batch.Queue(`INSERT INTO expense_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	}
	return pool.SendBatch(ctx, batch).Close()
}

type seedPlan struct {
	revenue, growth, expense money.Amount
}

// seedTransactions loads a month of revenue with a 60/30/10 split plus a few collections.
func seedTransactions(ctx context.Context, pool *pgxpool.Pool, plan seedPlan) error {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM cash_transactions`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		fmt.Println("  transactions already present, skipping")
		return nil
	}
	rows, err := pool.Query(ctx, `SELECT id FROM branches ORDER BY id`)
	if err != nil {
		return err
	}
	branches, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return err
	}

	start := time.Date(time.Now().Year(), time.Now().Month(), 1, 9, 0, 0, 0, time.UTC)
	batch := &pgx.Batch{}
	for _, branch := range branches {
		for day := 0; day < 28; day++ {
			at := start.AddDate(0, 0, day)
			amount := plan.revenue.Add(money.New(plan.growth.Minor() * int64(day))).Minor()
			opex := amount * 60 / 100
			dividend := amount * 30 / 100
			marketing := amount - opex - dividend
			batch.Queue(`INSERT INTO cash_transactions (branch_id, type, amount, occurred_at, description, opex_portion, dividend_portion, marketing_portion)
VALUES ($1, 'REVENUE', $2, $3, $4, $5, $6, $7)`, branch, amount, at, fmt.Sprintf("Daily sales %s", at.Format(time.DateOnly)), opex, dividend, marketing)
			if day%7 == 6 {
				batch.Queue(`INSERT INTO cash_transactions (branch_id, type, amount, occurred_at, description)
VALUES ($1, 'COLLECTION', $2, $3, 'Weekly cash collection')`, branch, amount/2, at.Add(8*time.Hour))
			}
		}
		batch.Queue(`INSERT INTO cash_transactions (branch_id, type, amount, occurred_at, description, opex_portion)
VALUES ($1, 'EXPENSE', $2, $3, 'Cleaning supplies', $2)`, branch, plan.expense.Minor(), start.AddDate(0, 0, 3))
	}
	return pool.SendBatch(ctx, batch).Close()
}
