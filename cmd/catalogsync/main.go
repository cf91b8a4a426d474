package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cuemby/catalogsync/pkg/batcher"
	"github.com/cuemby/catalogsync/pkg/bgworker"
	"github.com/cuemby/catalogsync/pkg/breaker"
	"github.com/cuemby/catalogsync/pkg/config"
	"github.com/cuemby/catalogsync/pkg/engine"
	"github.com/cuemby/catalogsync/pkg/hybrid"
	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/opapi"
	"github.com/cuemby/catalogsync/pkg/rategovernor"
	"github.com/cuemby/catalogsync/pkg/scheduler"
	"github.com/cuemby/catalogsync/pkg/sot"
	"github.com/cuemby/catalogsync/pkg/state"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "catalogsync",
	Short: "catalogsync - one-way catalog/inventory synchronizer",
	Long: `catalogsync projects product state from an upstream ERP
(source of truth) to a downstream marketplace API across many
independent merchant stores.

Each store is an isolated pipeline: pull a full inventory snapshot from
the source of truth, diff it against the last-known marketplace state,
and push only what changed through two rate-limited endpoints.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"catalogsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "catalogsync.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("state-dir", "", "Override the configured state directory")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(hybridInitCmd)
	rootCmd.AddCommand(listStoresCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// app bundles the process-scoped dependencies every command threads
// through: constructed once per invocation and passed explicitly,
// never looked up globally.
type app struct {
	cfg         *config.File
	stateDir    string
	stores      []types.Store
	engine      *engine.Engine
	governor    *rategovernor.Governor
	batcher     *batcher.Batcher
	breakers    *breaker.Registry
	state       state.Store
	checkpoints state.CheckpointStore
	hybridCfg   hybrid.Config
	bgCfg       bgworker.Config
}

func buildApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	stateDirOverride, _ := cmd.Flags().GetString("state-dir")

	cfgFile, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	stores, err := cfgFile.ResolveStores()
	if err != nil {
		return nil, fmt.Errorf("resolve store credentials: %w", err)
	}

	stateDir := cfgFile.StateDir()
	if stateDirOverride != "" {
		stateDir = stateDirOverride
	}

	stateStore, err := state.NewFileStateStore(filepath.Join(stateDir), state.WriteModeAtomic)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	checkpoints, err := state.NewFileCheckpointStore(filepath.Join(stateDir, "checkpoints"), state.WriteModeAtomic)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	governor, err := rategovernor.New(filepath.Join(stateDir, "rate-limits.json"), cfgFile.RateGovernorConfig())
	if err != nil {
		return nil, fmt.Errorf("open rate governor: %w", err)
	}
	adaptiveBatcher, err := batcher.New(filepath.Join(stateDir, "adaptive-batch.json"), cfgFile.BatcherConfig())
	if err != nil {
		return nil, fmt.Errorf("open adaptive batcher: %w", err)
	}
	breakers := breaker.NewRegistry()

	eng := engine.New(cfgFile.EngineConfig(), engine.Dependencies{
		State:                     stateStore,
		Checkpoints:               checkpoints,
		Governor:                  governor,
		Batcher:                   adaptiveBatcher,
		Breakers:                  breakers,
		DefaultMarketplaceBaseURL: cfgFile.DefaultMarketplaceBaseURL(),
	})

	return &app{
		cfg:         cfgFile,
		stateDir:    stateDir,
		stores:      stores,
		engine:      eng,
		governor:    governor,
		batcher:     adaptiveBatcher,
		breakers:    breakers,
		state:       stateStore,
		checkpoints: checkpoints,
		hybridCfg:   cfgFile.HybridConfig(),
		bgCfg:       cfgFile.BackgroundWorkerConfig(),
	}, nil
}

func (a *app) findStore(id int) (types.Store, error) {
	for _, s := range a.stores {
		if s.ID == id {
			return s, nil
		}
	}
	return types.Store{}, fmt.Errorf("no store with id %d configured", id)
}

func (a *app) clients(store types.Store) (sot.Client, marketplace.Client) {
	sotClient := sot.NewHTTPClient(a.cfg.SoTBaseURL(), store.Login, store.Password)
	baseURL := store.BaseURL
	if baseURL == "" {
		baseURL = a.cfg.DefaultMarketplaceBaseURL()
	}
	marketClient := marketplace.NewHTTPClient(baseURL, store.Login, store.Password)
	return sotClient, marketClient
}

func (a *app) clientFactory() scheduler.ClientFactory {
	return func(store types.Store) (sot.Client, marketplace.Client, error) {
		sotClient, marketClient := a.clients(store)
		return sotClient, marketClient, nil
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one SyncEngine pass for a single store",
	RunE: func(cmd *cobra.Command, args []string) error {
		storeID, _ := cmd.Flags().GetInt("store")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		limit, _ := cmd.Flags().GetInt("limit")
		forceFull, _ := cmd.Flags().GetBool("force-full")

		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		store, err := a.findStore(storeID)
		if err != nil {
			return err
		}
		sotClient, marketClient := a.clients(store)

		mode := types.ModeDelta
		if forceFull {
			mode = types.ModeForceFull
		}
		if limit > 0 {
			mode = types.ModeLimited
		}

		result, err := a.engine.Run(context.Background(), store, sotClient, marketClient, mode, engine.Options{
			Limit:  limit,
			DryRun: dryRun,
		})
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("store %d: mode=%s outcome=%s items=%d inventory=%d forced-zero-price=%d\n",
			store.ID, result.Mode, result.Outcome, result.ItemUpdates, result.InventoryUpdates, result.ForcedZeroPrice)
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("store", 0, "Store id to sync (required)")
	syncCmd.Flags().Bool("dry-run", false, "Compute the diff without pushing or persisting state")
	syncCmd.Flags().Int("limit", 0, "Cap the number of pushed updates (limited mode, partial by contract)")
	syncCmd.Flags().Bool("force-full", false, "Send every SKU as if new")
	_ = syncCmd.MarkFlagRequired("store")
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Write initial state for a store without calling the marketplace",
	RunE: func(cmd *cobra.Command, args []string) error {
		storeID, _ := cmd.Flags().GetInt("store")
		all, _ := cmd.Flags().GetBool("all")

		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		targets := a.stores
		if !all {
			store, err := a.findStore(storeID)
			if err != nil {
				return err
			}
			targets = []types.Store{store}
		}

		for _, store := range targets {
			sotClient, marketClient := a.clients(store)
			result, err := a.engine.Run(context.Background(), store, sotClient, marketClient, types.ModeBootstrap, engine.Options{})
			if err != nil {
				return fmt.Errorf("bootstrap store %d: %w", store.ID, err)
			}
			fmt.Printf("store %d: bootstrap outcome=%s\n", store.ID, result.Outcome)
		}
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().Int("store", 0, "Store id to bootstrap")
	bootstrapCmd.Flags().Bool("all", false, "Bootstrap every configured store")
}

var hybridInitCmd = &cobra.Command{
	Use:   "hybrid-init",
	Short: "First-time store initialization: bootstrap, introspect, priority push, start background worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		storeID, _ := cmd.Flags().GetInt("store")

		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		store, err := a.findStore(storeID)
		if err != nil {
			return err
		}
		sotClient, marketClient := a.clients(store)

		progressPath := filepath.Join(a.stateDir, fmt.Sprintf(".bg-worker-progress-%d.json", store.ID))
		ctx, cancel := signalContext()
		defer cancel()

		result, err := hybrid.Run(ctx, store, sotClient, marketClient, a.engine, a.hybridCfg, a.bgCfg, progressPath)
		if err != nil {
			return fmt.Errorf("hybrid init failed: %w", err)
		}
		if result.AlreadyInitialized {
			fmt.Printf("store %d: already initialized, no-op\n", store.ID)
			return nil
		}
		fmt.Printf("store %d: bootstrapped=%d introspected-synced=%d priority-synced=%d, background worker started\n",
			store.ID, result.BootstrappedSKUs, result.IntrospectedSynced, result.PrioritySynced)
		fmt.Println("background worker runs for the lifetime of this process; press Ctrl+C to stop")

		<-ctx.Done()
		fmt.Println("shutting down")
		return nil
	},
}

func init() {
	hybridInitCmd.Flags().Int("store", 0, "Store id to initialize (required)")
	_ = hybridInitCmd.MarkFlagRequired("store")
}

var listStoresCmd = &cobra.Command{
	Use:   "list-stores",
	Short: "List configured stores and their enabled state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		for _, s := range a.cfg.Stores {
			status := "disabled"
			if s.Enabled {
				status = "enabled"
			}
			fmt.Printf("%-6d %-24s venue=%-16s %s\n", s.ID, s.Name, s.VenueID, status)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler sweep loop and the operator HTTP surface in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpAddr, _ := cmd.Flags().GetString("http-addr")

		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		sched := scheduler.New(a.stores, a.engine, a.clientFactory(), a.cfg.SchedulerConfig())

		ctx, cancel := signalContext()
		defer cancel()

		sched.Start(ctx)
		fmt.Printf("scheduler started: %d enabled store(s), sweeping every %s\n", len(sched.Stores()), a.cfg.SchedulerConfig().SyncInterval)

		server := opapi.New(sched, a.breakers)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(httpAddr); err != nil {
				errCh <- err
			}
		}()
		fmt.Printf("operator HTTP surface listening on %s\n", httpAddr)

		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "operator HTTP surface error: %v\n", err)
		}

		sched.Stop()
		fmt.Println("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("http-addr", "127.0.0.1:8081", "Address for the operator HTTP surface")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
