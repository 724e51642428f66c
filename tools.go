package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/explorer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the agenda tables (SQLite only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("database ready", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}

var (
	viewUser  string
	viewMode  string
	viewDate  string
	viewTypes []string
	viewQuery string
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print a composed agenda view as JSON",
	Long: `Reads every source for a user and prints the composed view.

Example:
  agenda view --user ada@example.com --view week --date 2024-06-05`,
	RunE: runView,
}

func runView(cmd *cobra.Command, args []string) error {
	if viewUser == "" {
		return errors.New("--user is required")
	}
	mode, err := agenda.ParseViewMode(viewMode)
	if err != nil {
		return err
	}
	types, err := agenda.ParseTypes(viewTypes)
	if err != nil {
		return err
	}
	var date time.Time
	if viewDate != "" {
		date, err = time.ParseInLocation("2006-01-02", viewDate, location())
		if err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	svc := newAgenda(store, database.NewSettingsService(store, logger))
	res := svc.View(cmd.Context(), viewUser, mode, date, agenda.Filter{
		Types:  types,
		Search: viewQuery,
	})
	for _, e := range res.Errors {
		logger.Warn("source failed", zap.String("source", e.Source), zap.Error(e.Err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.View)
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Run table discovery and report every strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		exp, err := newExplorer(store)
		if err != nil {
			return err
		}
		d, err := exp.Discover(cmd.Context())
		var de *explorer.DiscoveryError
		if errors.As(err, &de) {
			for _, a := range de.Attempts {
				fmt.Printf("%-10s %s\n", a.Strategy, a.Error)
			}
			fmt.Println()
			fmt.Println("Run the following SQL to enable discovery:")
			fmt.Println(de.Instructions)
			return err
		}
		if err != nil {
			return err
		}

		for _, a := range d.Attempts {
			fmt.Printf("%-10s %-6s %d tables\n", a.Strategy, a.Outcome, len(a.Tables))
		}
		fmt.Printf("\nusing %s:\n", d.Strategy)
		for _, t := range d.Tables {
			fmt.Println("  " + t)
		}
		return nil
	},
}

func init() {
	viewCmd.Flags().StringVar(&viewUser, "user", "", "User id (email)")
	viewCmd.Flags().StringVar(&viewMode, "view", "day", "View mode: day, week or month")
	viewCmd.Flags().StringVar(&viewDate, "date", "", "Reference date (YYYY-MM-DD), defaults to today")
	viewCmd.Flags().StringSliceVar(&viewTypes, "types", nil, "Item types to include")
	viewCmd.Flags().StringVarP(&viewQuery, "query", "q", "", "Search text")
}
