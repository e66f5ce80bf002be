// Command gatelog is the campus entry/exit tracker. It records
// attendance events and person registrations into a local store that
// works fully offline, and syncs pending records to a shared
// spreadsheet backend whenever connectivity allows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusgate/gatelog/internal/config"
	"github.com/campusgate/gatelog/internal/engine"
	"github.com/campusgate/gatelog/internal/logging"
	"github.com/campusgate/gatelog/internal/netmon"
	"github.com/campusgate/gatelog/internal/sheets"
	"github.com/campusgate/gatelog/internal/store"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gatelog",
	Short: "Offline-first campus entry/exit tracking",
	Long: `gatelog records campus entry/exit events and person registrations.

All writes land in a local database first, so the gate keeps working
with no connectivity. Pending records are queued and delivered to the
shared spreadsheet backend when the device is online.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Record commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "admin", Title: "Administration commands:"},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the local database and ensures the schema exists.
func openStore(cmd *cobra.Command) *store.DB {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(cmd.Context()); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return db
}

// remoteClient builds the spreadsheet backend client with the local
// spool fallback.
func remoteClient() sheets.Client {
	hc := sheets.New(sheets.Config{
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		APIKey:        cfg.Sheets.APIKey,
		Token:         cfg.Sheets.Token,
		ScriptURL:     cfg.Sheets.ScriptURL,
		BaseURL:       cfg.Sheets.BaseURL,
		EntrySheets:   cfg.Sheets.EntrySheets,
		PeopleSheet:   cfg.Sheets.PeopleSheet,
		Logger:        logging.New("sheets"),
	})
	return sheets.NewSpoolFallback(hc, cfg.SpoolFile, logging.New("spool"))
}

// openEngine wires up the store, remote client and a manual
// connectivity monitor for one-shot commands. The caller closes the
// store when done.
func openEngine(cmd *cobra.Command, online bool) (*engine.Engine, *store.DB, *netmon.Manual) {
	db := openStore(cmd)

	mon := netmon.NewManual(online)
	eng, err := engine.New(db, remoteClient(), mon, engine.Config{
		SyncInterval: cfg.SyncInterval,
		CallTimeout:  cfg.CallTimeout,
		Logger:       logging.New("engine"),
	})
	if err != nil {
		db.Close()
		fmt.Fprintf(os.Stderr, "Error creating sync engine: %v\n", err)
		os.Exit(1)
	}
	return eng, db, mon
}
