// Command gallicanav processes digital-library access logs into classified
// request datasets and reconstructed navigation sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dhlab/gallicanav/internal/config"
	"github.com/dhlab/gallicanav/internal/ledger"
	"github.com/dhlab/gallicanav/internal/logging"
	"github.com/dhlab/gallicanav/internal/pipeline"
	"github.com/dhlab/gallicanav/internal/server"
	"github.com/dhlab/gallicanav/internal/session"
	"github.com/dhlab/gallicanav/internal/storage"
)

var (
	fromChunk int
	toChunk   int

	rootCmd = &cobra.Command{
		Use:           "gallicanav",
		Short:         "Access-log processing for digital-library navigation analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	processCmd = &cobra.Command{
		Use:   "process",
		Short: "Classify raw log chunks and reconstruct their sessions",
		RunE: runStage(func(ctx context.Context, app *application, chunks []int) error {
			if err := app.pipeline.Classify(ctx, chunks); err != nil {
				return err
			}
			return app.pipeline.Sessions(ctx, chunks)
		}),
	}

	classifyCmd = &cobra.Command{
		Use:   "classify",
		Short: "Run only the classification stage",
		RunE: runStage(func(ctx context.Context, app *application, chunks []int) error {
			return app.pipeline.Classify(ctx, chunks)
		}),
	}

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Run only the session-reconstruction stage",
		RunE: runStage(func(ctx context.Context, app *application, chunks []int) error {
			return app.pipeline.Sessions(ctx, chunks)
		}),
	}

	collateCmd = &cobra.Command{
		Use:   "collate",
		Short: "Merge per-chunk session outputs into the unified dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.pipeline.Collate(ctx)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the run status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			srv := server.New(app.cfg, app.store, app.ledger, app.log)
			return srv.Start(ctx)
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{processCmd, classifyCmd, sessionsCmd} {
		cmd.Flags().IntVar(&fromChunk, "from", 0, "first chunk to process (0 = all discovered)")
		cmd.Flags().IntVar(&toChunk, "to", 0, "last chunk to process (0 = all discovered)")
	}
	rootCmd.AddCommand(processCmd, classifyCmd, sessionsCmd, collateCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// application bundles the run dependencies built from configuration.
type application struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    storage.ChunkStore
	ledger   ledger.Ledger
	pipeline *pipeline.Pipeline
	closers  []func()
}

func (a *application) close() {
	for _, fn := range a.closers {
		fn()
	}
}

// setup loads configuration and builds the store, ledger and pipeline. The
// returned context ends on SIGINT/SIGTERM.
func setup(cmd *cobra.Command) (context.Context, *application, error) {
	// A missing .env is fine; the environment itself still applies.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(cfg.Primary.LogLevel, cfg.Primary.Env)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	app := &application{cfg: cfg, log: log, closers: []func(){stop}}

	if cfg.Storage.UseS3() {
		store, err := storage.NewObjectStore(cfg.Storage.S3)
		if err != nil {
			app.close()
			return nil, nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			app.close()
			return nil, nil, err
		}
		app.store = store
	} else {
		store, err := storage.NewLocalStore(cfg.Storage.DataDir)
		if err != nil {
			app.close()
			return nil, nil, err
		}
		app.store = store
	}

	if cfg.Database.URL != "" {
		pg, err := ledger.NewPostgres(ctx, cfg.Database.URL, log)
		if err != nil {
			app.close()
			return nil, nil, err
		}
		app.ledger = pg
		app.closers = append(app.closers, pg.Close)
	} else {
		log.Debug().Msg("no database configured, using in-memory ledger")
		app.ledger = ledger.NewMemory()
	}

	app.pipeline = pipeline.New(app.store, app.ledger, pipeline.Options{
		Session: session.Config{
			Inactivity:         time.Duration(cfg.Pipeline.InactivityMinutes) * time.Minute,
			FrequencyThreshold: cfg.Pipeline.RequestThreshold,
			MinRequestsPerUser: cfg.Pipeline.MinRequestsPerUser,
		},
		ProcessBots:  cfg.Pipeline.ProcessBots,
		StrictParse:  cfg.Pipeline.StrictParse,
		Workers:      cfg.Pipeline.Workers,
		CrawlerToken: cfg.Pipeline.CrawlerToken,
	}, log)

	return ctx, app, nil
}

// runStage wraps a stage function with setup and chunk selection.
func runStage(fn func(context.Context, *application, []int) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, app, err := setup(cmd)
		if err != nil {
			return err
		}
		defer app.close()

		chunks, err := selectChunks(ctx, app)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			app.log.Warn().Msg("no chunks selected, nothing to do")
			return nil
		}
		return fn(ctx, app, chunks)
	}
}

// selectChunks resolves the --from/--to range against the raw chunks present
// in the store.
func selectChunks(ctx context.Context, app *application) ([]int, error) {
	discovered, err := app.pipeline.RawChunks(ctx)
	if err != nil {
		return nil, err
	}
	if fromChunk == 0 && toChunk == 0 {
		return discovered, nil
	}
	var out []int
	for _, chunk := range discovered {
		if fromChunk != 0 && chunk < fromChunk {
			continue
		}
		if toChunk != 0 && chunk > toChunk {
			continue
		}
		out = append(out, chunk)
	}
	return out, nil
}
