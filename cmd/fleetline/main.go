package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fleetline/agent/internal/categories"
	"github.com/fleetline/agent/internal/config"
	"github.com/fleetline/agent/internal/drivemap"
	"github.com/fleetline/agent/internal/graph"
	"github.com/fleetline/agent/internal/identity"
	"github.com/fleetline/agent/internal/logging"
	"github.com/fleetline/agent/internal/provision"
)

var (
	version   = "0.1.0"
	cfgFile   string
	dryRun    bool
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "fleetline",
	Short: "Fleetline fleet administration tool",
	Long:  `Fleetline - Intune device category assignment and logon drive mapping for Windows/Entra ID fleets`,
}

var assignCmd = &cobra.Command{
	Use:   "assign-categories",
	Short: "Assign Intune device categories based on directory group membership",
	Run: func(cmd *cobra.Command, args []string) {
		runAssignCategories()
	},
}

var mapDrivesCmd = &cobra.Command{
	Use:   "map-drives",
	Short: "Map network drives for the invoking user (self-installs under SYSTEM)",
	Run: func(cmd *cobra.Command, args []string) {
		runMapDrives()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Fleetline v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is fleetline.yaml in the OS config dir)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log planned actions without changing anything")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(mapDrivesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var log = logging.L("main")

// setup loads config and initializes logging. Config-load failure is one of
// the few terminal errors.
func setup() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	var output io.Writer
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, 10, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", cfg.LogFile, err)
		} else {
			output = rw
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)

	for _, err := range cfg.Validate() {
		log.Warn("config validation", logging.KeyError, err)
	}
	return cfg
}

func openTranscript(cfg *config.Config, label string) {
	if cfg.TranscriptDir == "" {
		return
	}
	if err := logging.OpenTranscript(cfg.TranscriptDir, label); err != nil {
		log.Warn("transcript unavailable", logging.KeyError, err)
	}
}

func runAssignCategories() {
	cfg := setup()
	openTranscript(cfg, "assign-categories")
	defer logging.CloseTranscript()

	client, err := graph.NewClient(cfg.Graph)
	if err != nil {
		log.Error("graph client setup failed", logging.KeyError, err)
		os.Exit(1)
	}

	assigner := &categories.Assigner{
		Client: client,
		Rules:  cfg.CategoryRules,
		DryRun: dryRun,
	}
	assigner.Run(context.Background())
}

func runMapDrives() {
	cfg := setup()

	account, err := identity.Current()
	if err != nil {
		log.Error("account resolution failed", logging.KeyError, err)
		os.Exit(1)
	}

	if account.IsSystem {
		openTranscript(cfg, "provision")
		defer logging.CloseTranscript()

		exe, err := os.Executable()
		if err != nil {
			log.Error("locating own executable failed", logging.KeyError, err)
			os.Exit(1)
		}
		// Scheduled-task registration failure is terminal for this phase.
		if err := provision.Run(cfg, exe, dryRun); err != nil {
			log.Error("provisioning failed", logging.KeyError, err)
			os.Exit(1)
		}
		return
	}

	openTranscript(cfg, "map-drives")
	defer logging.CloseTranscript()

	// Membership is resolved once, and only when a mapping actually
	// declares a filter.
	var (
		memberships  []string
		lookupFailed bool
	)
	if anyFiltered(cfg.DriveMappings) {
		memberships, err = identity.TransitiveGroups()
		if err != nil {
			log.Error("group membership lookup failed, proceeding without filters matched",
				logging.KeyUser, account.Name, logging.KeyError, err)
			memberships = nil
			lookupFailed = true
		}
	}

	mapper := &drivemap.Mapper{
		Backend:                drivemap.NewBackend(),
		Records:                cfg.DriveMappings,
		Username:               account.Username,
		Memberships:            memberships,
		MembershipLookupFailed: lookupFailed,
		RemoveStale:            cfg.RemoveStaleDrives,
		DryRun:                 dryRun,
	}
	if err := mapper.Run(); err != nil {
		log.Error("drive mapping run failed", logging.KeyError, err)
	}
}

func anyFiltered(records []config.DriveMappingRecord) bool {
	for _, rec := range records {
		if strings.TrimSpace(rec.GroupFilter) != "" {
			return true
		}
	}
	return false
}
