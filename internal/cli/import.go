package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"trivia-quiz-engine/internal/config"
	"trivia-quiz-engine/internal/domain"
	"trivia-quiz-engine/internal/infra/opentdb"
	"trivia-quiz-engine/internal/infra/postgres"
)

// NewImportCmd copies provider questions into the Postgres question bank.
func NewImportCmd(configPath *string) *cobra.Command {
	var (
		topics       []string
		difficulties []string
		amount       int
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Fetch questions from Open Trivia DB into the question bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log.Level, cfg.Log.Format)
			return runImport(cmd.Context(), cfg, topics, difficulties, amount)
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "topic ids to import (default: all)")
	cmd.Flags().StringSliceVar(&difficulties, "difficulty", []string{"easy", "medium", "hard"}, "difficulties to import")
	cmd.Flags().IntVar(&amount, "amount", 50, "questions to request per topic and difficulty")
	return cmd
}

func runImport(ctx context.Context, cfg config.Config, topicIDs, difficulties []string, amount int) error {
	db, err := openBunDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := RunMigrations(ctx, db); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	bank := postgres.NewQuestionBank(pool)

	client := newProviderClient(cfg)
	importer := postgres.NewImporter(db)

	if len(topicIDs) == 0 {
		for _, t := range domain.Topics() {
			topicIDs = append(topicIDs, t.ID)
		}
	}
	for _, id := range topicIDs {
		topic, ok := domain.LookupTopic(id)
		if !ok {
			return fmt.Errorf("topic %q: %w", id, domain.ErrInvalidCategory)
		}
		for _, raw := range difficulties {
			difficulty, err := domain.ParseDifficulty(raw)
			if err != nil {
				return err
			}
			records, err := client.FetchQuestions(ctx, topic.CategoryID, difficulty, amount)
			if err != nil {
				return fmt.Errorf("fetch %s/%s: %w", topic.ID, difficulty, err)
			}
			n, err := importer.Import(ctx, topic.CategoryID, difficulty, records)
			if err != nil {
				return err
			}
			total, err := bank.Count(ctx, topic.CategoryID, difficulty)
			if err != nil {
				return err
			}
			slog.Info("imported questions", "topic", topic.ID, "difficulty", difficulty, "fetched", len(records), "new", n, "bank", total)
		}
	}
	return nil
}

func newProviderClient(cfg config.Config) *opentdb.Client {
	return opentdb.NewClient(cfg.Provider.BaseURL,
		opentdb.WithHTTPClient(newHTTPClient(config.Duration(cfg.Provider.Timeout, 10*time.Second))),
		opentdb.WithRetry(
			cfg.MaxRetries(opentdb.DefaultMaxRetries),
			config.Duration(cfg.Provider.InitialBackoff, opentdb.DefaultInitialBackoff),
		),
		opentdb.WithLogger(slog.Default()),
	)
}
