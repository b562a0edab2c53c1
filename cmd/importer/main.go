package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"marketplace-orders/internal/config"
	"marketplace-orders/internal/db"
	"marketplace-orders/internal/importer"
	offerrepo "marketplace-orders/internal/repository/offer"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to a sku,price,mrp,stock_quantity,status CSV")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[importer] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatalf("open file: %v", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, offerrepo.NewPostgres(pool, logger), logger)

	start := time.Now()
	res, err := imp.Run(ctx)
	if err != nil {
		logger.Fatalf("import failed after %d offers: %v", res.Updated, err)
	}

	logger.Printf("updated %d offers in %s (%d unknown skus)", res.Updated, time.Since(start).Truncate(time.Millisecond), len(res.Unknown))
}
