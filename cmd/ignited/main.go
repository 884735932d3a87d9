// Entry point for the ignite storage engine tooling: data directory
// initialization and crash recovery.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dataignite/ignite/internal/config"
	"github.com/dataignite/ignite/internal/logger"
	"github.com/dataignite/ignite/pkg/storage"
	"github.com/dataignite/ignite/pkg/wal"
)

const dataFileName = "ignite.db"

var (
	version   = "0.1.0"
	buildDate = "dev"
	cfgFile   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ignited",
		Short: "ignite - durable multi-version page store",
		Long: `ignite is a page-organized storage engine with multi-version rows,
a redo log and crash recovery.

Initialize a data directory:
  ignited init ./data

Replay the redo log after a crash:
  ignited recover --config /path/to/ignite.yaml`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ignite %s (built %s)\n", version, buildDate)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new data directory",
		Args:  cobra.MaximumNArgs(1),
		Run:   initStore,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "Replay the redo log against the data file",
		Run:   runRecovery,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRecovery(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := config.ValidateDataDir(cfg.Storage.DataDir); err != nil {
		log.Error("Data directory validation failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'ignited init' to create a new data directory\n")
		os.Exit(1)
	}

	log.Info("Starting recovery",
		"version", version,
		"data_dir", cfg.Storage.DataDir,
		"wal_dir", cfg.Storage.WalDir,
	)

	pager, err := storage.OpenPager(cfg.Storage.DataDir, dataFileName, cfg.Storage.PageSize)
	if err != nil {
		log.Error("Failed to open data file", "error", err)
		os.Exit(1)
	}
	defer pager.Close()

	w, err := wal.Open(cfg.Storage.WalDir)
	if err != nil {
		log.Error("Failed to open redo log", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	stats, err := wal.NewRecovery(w, pager).Run()
	if err != nil {
		log.Error("Recovery failed", "error", err)
		os.Exit(1)
	}

	log.Info("Recovery complete",
		"start_lsn", uint64(stats.StartLSN),
		"records_scanned", stats.RecordsScanned,
		"records_applied", stats.RecordsApplied,
		"records_skipped", stats.RecordsSkipped,
	)
}

func initStore(cmd *cobra.Command, args []string) {
	dir := "./data"
	if len(args) > 0 {
		dir = args[0]
	}

	fmt.Printf("Initializing new data directory: %s\n", dir)

	if err := config.InitDataDir(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Format the meta page of a fresh data file.
	pager, err := storage.OpenPager(dir, dataFileName, 8192)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer pager.Close()

	buf := make([]byte, pager.PageSize())
	if err := storage.InitMetaPage(buf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := pager.WritePage(0, buf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfgPath := "ignite.yaml"
	if err := config.CreateDefaultConfig(cfgPath, dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create config file: %v\n", err)
	} else {
		fmt.Printf("Created config file: %s\n", cfgPath)
	}

	fmt.Println("Data directory initialized successfully!")
	fmt.Printf("Recover after a crash with: ignited recover --config %s\n", cfgPath)
}
