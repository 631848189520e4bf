// Command cards-import validates a JSON card file and upserts it into the
// cards table the server reads when cards.source is postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/config"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	inputPath  = flag.String("in", "", "card file to import (defaults to cards.path)")
	batchSize  = flag.Int("batch", 500, "records per transaction")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal("card import failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	path := *inputPath
	if path == "" {
		path = cfg.Cards.Path
	}
	if cfg.Cards.DatabaseURL == "" {
		return fmt.Errorf("cards.database_url is required")
	}

	records, err := cards.FileSource{Path: path}.Records(ctx)
	if err != nil {
		return err
	}
	// refuse to write anything the server would reject on load
	if err := cards.NewStore(logger).Load(ctx, cards.StaticSource(records)); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	logger.Info("card file validated", zap.String("path", path), zap.Int("cards", len(records)))

	src, err := cards.NewPostgresSource(ctx, cfg.Cards.DatabaseURL, cfg.Cards.MaxConns)
	if err != nil {
		return err
	}
	defer src.Close()
	src.Table = cfg.Cards.Table

	if err := src.EnsureTable(ctx); err != nil {
		return err
	}

	start := time.Now()
	imported, err := src.Import(ctx, records, *batchSize)
	if err != nil {
		return fmt.Errorf("after %d cards: %w", imported, err)
	}
	logger.Info("cards imported",
		zap.Int("cards", imported),
		zap.String("table", src.Table),
		zap.Duration("took", time.Since(start)))
	return nil
}
