package main

import (
	"context"
	"flag"
	"log"
	"os"

	"marketplace-orders/internal/config"
	"marketplace-orders/internal/db"
	"marketplace-orders/internal/migrate"
	"marketplace-orders/internal/seed"
)

func main() {
	withMigrations := flag.Bool("migrate", false, "apply pending migrations before seeding")
	flag.Parse()

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if *withMigrations {
		if err := migrate.Apply(ctx, pool); err != nil {
			logger.Fatalf("apply migrations: %v", err)
		}
		logger.Println("migrations applied")
	}

	sum, err := seed.Apply(ctx, pool)
	if err != nil {
		logger.Fatalf("seed apply: %v", err)
	}

	logger.Printf("seed applied customer_id=%s sellers=%d offers=%d coupon=%s", sum.CustomerID, sum.Sellers, sum.Offers, sum.Coupon)
}
