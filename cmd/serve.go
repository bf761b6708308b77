package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletd/activitysearch"
	"github.com/tranvictor/walletd/approval"
	"github.com/tranvictor/walletd/config"
	"github.com/tranvictor/walletd/httpapi"
	"github.com/tranvictor/walletd/pricing"
	"github.com/tranvictor/walletd/queue"
	"github.com/tranvictor/walletd/repo"
	"github.com/tranvictor/walletd/rpc"
	"github.com/tranvictor/walletd/tokens"
	"github.com/tranvictor/walletd/txaction"
	"github.com/tranvictor/walletd/vault"
)

var (
	unlockAccount string
	verbose       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet daemon",
	Long: `Runs the wallet daemon: it queues page approvals, resolves them on the
user's decision, keeps token balances and prices synced and serves the local
HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		if config.Environment == "production" {
			gin.SetMode(gin.ReleaseMode)
		}

		if err := os.MkdirAll(config.DataDir, 0o700); err != nil {
			return fmt.Errorf("creating data dir %s: %w", config.DataDir, err)
		}
		kv, err := repo.OpenBolt(filepath.Join(config.DataDir, "walletd.db"))
		if err != nil {
			return err
		}
		defer kv.Close()

		registry, err := vault.LoadRegistry(config.DataDir)
		if err != nil {
			return err
		}
		signer := vault.NewKeystoreVault(registry)
		defer signer.Lock()
		if unlockAccount != "" {
			passphrase := vault.PromptPassphrase(
				fmt.Sprintf("Passphrase for account %s: ", unlockAccount),
			)
			if err = signer.Unlock(unlockAccount, passphrase); err != nil {
				return err
			}
			logger.Info("account unlocked", "account", unlockAccount)
		}

		gateway := rpc.NewGateway(logger)

		taskQueue := queue.NewTaskQueue(config.SyncWorkers, config.SyncBacklog, logger)
		defer taskQueue.Close()
		engine := tokens.NewEngine(
			kv, gateway,
			pricing.NewCoinGecko(config.CoinGeckoAPIKey),
			pricing.NewAnalytics(config.AnalyticsAPIKey),
			taskQueue, logger,
		)
		board := tokens.NewStatusBoard(engine)

		search, err := activitysearch.Open(
			filepath.Join(config.DataDir, "activities.bleve"), kv, logger,
		)
		if err != nil {
			return err
		}
		defer search.Close()

		store := approval.NewStore()
		resolver := approval.NewResolver(
			store, kv, gateway, registry,
			txaction.NewClassifier(gateway),
			engine, search, logger,
		)
		handler := httpapi.NewHandler(store, resolver, signer, kv, engine, board, search)
		server := httpapi.NewServer(config.HTTPAddr, handler)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()
		logger.Info(
			"walletd is up",
			"addr", config.HTTPAddr,
			"dataDir", config.DataDir,
			"env", config.Environment,
		)

		select {
		case err = <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(
		&unlockAccount, "unlock", "",
		"account id to unlock at startup, prompting for its passphrase",
	)
	serveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.AddCommand(serveCmd)
}
