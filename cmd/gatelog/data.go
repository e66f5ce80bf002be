package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusgate/gatelog/internal/record"
	"github.com/campusgate/gatelog/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "admin",
	Short:   "Export the local store as JSON",
	Long: `Write all entries, people and settings as a single JSON document,
to the given file or to stdout. The pending queue is not included.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db := openStore(cmd)
		defer db.Close()

		snap, err := db.Export(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
			os.Exit(1)
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding export: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			fmt.Println(string(data))
			return
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("%s Exported %d entries and %d people to %s\n",
			ui.RenderPass("✓"), len(snap.Entries), len(snap.People), args[0])
	},
}

var importYes bool

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "admin",
	Short:   "Replace local records from a JSON export",
	Long: `Load a JSON export and replace the local entries and people tables
with its contents. Settings are merged; the pending queue is preserved.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !importYes {
			fmt.Fprintf(os.Stderr, "Error: import replaces local records; pass --yes to confirm\n")
			os.Exit(1)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}
		var snap record.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", args[0], err)
			os.Exit(1)
		}

		db := openStore(cmd)
		defer db.Close()

		if err := db.Import(cmd.Context(), &snap); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Imported %d entries and %d people\n",
			ui.RenderPass("✓"), len(snap.Entries), len(snap.People))
	},
}

var wipeYes bool

var wipeCmd = &cobra.Command{
	Use:     "wipe",
	GroupID: "admin",
	Short:   "Delete all local data",
	Long: `Delete every entry, person, queued mutation and setting from the
local store. The remote backend is untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !wipeYes {
			fmt.Fprintf(os.Stderr, "Error: wipe deletes all local data; pass --yes to confirm\n")
			os.Exit(1)
		}

		db := openStore(cmd)
		defer db.Close()

		if err := db.Wipe(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error wiping store: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Local store wiped\n", ui.RenderPass("✓"))
	},
}

func init() {
	importCmd.Flags().BoolVar(&importYes, "yes", false, "confirm the destructive import")
	wipeCmd.Flags().BoolVar(&wipeYes, "yes", false, "confirm deleting all local data")
	rootCmd.AddCommand(exportCmd, importCmd, wipeCmd)
}
