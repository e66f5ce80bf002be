package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusgate/gatelog/internal/engine"
	"github.com/campusgate/gatelog/internal/record"
	"github.com/campusgate/gatelog/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Drain the pending queue now",
	Long: `Deliver all queued mutations to the spreadsheet backend, oldest
first. Each mutation gets up to 3 delivery attempts across sync rounds;
after the third failure the record is marked failed and the mutation is
dropped.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, db, _ := openEngine(cmd, true)
		defer db.Close()

		before := eng.Status().Pending
		start := time.Now()
		if err := eng.ForceSync(cmd.Context()); err != nil {
			if errors.Is(err, engine.ErrOffline) {
				fmt.Fprintf(os.Stderr, "Error: device is offline\n")
			} else {
				fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			}
			os.Exit(1)
		}

		st := eng.Status()
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Delivered: %d\n", before-st.Pending)
		fmt.Printf("   Remaining: %d\n", st.Pending)
		for _, msg := range eng.Errors() {
			fmt.Printf("   %s %s\n", ui.RenderErr("✗"), msg)
		}
	},
}

var downloadYes bool

var downloadCmd = &cobra.Command{
	Use:     "download",
	GroupID: "sync",
	Short:   "Replace local records with the remote backend's contents",
	Long: `Download all entries and people from the spreadsheet backend and
replace the local tables with them.

This is destructive: local records not present remotely are lost. The
pending queue is preserved, so undelivered mutations still sync later.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !downloadYes {
			fmt.Fprintf(os.Stderr, "Error: download replaces local records; pass --yes to confirm\n")
			os.Exit(1)
		}

		eng, db, _ := openEngine(cmd, true)
		defer db.Close()

		if err := eng.Download(cmd.Context()); err != nil {
			if errors.Is(err, engine.ErrOffline) {
				fmt.Fprintf(os.Stderr, "Error: device is offline\n")
			} else {
				fmt.Fprintf(os.Stderr, "Error during download: %v\n", err)
			}
			os.Exit(1)
		}

		stats, err := eng.Statistics(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading statistics: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Download complete\n", ui.RenderPass("✓"))
		fmt.Printf("   Entries: %d\n", stats.TotalEntries)
		fmt.Printf("   People:  %d\n", stats.TotalPeople)
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status",
	Run: func(cmd *cobra.Command, args []string) {
		eng, db, _ := openEngine(cmd, false)
		defer db.Close()

		st := eng.Status()
		fmt.Printf("\n%s\n", ui.RenderAccent("Sync status"))
		fmt.Printf("   Device:  %s\n", eng.DeviceID())
		fmt.Printf("   Pending: %d\n", st.Pending)
		if st.LastSync != nil {
			fmt.Printf("   Last sync: %s\n", st.LastSync.Format(time.RFC3339))
		} else {
			fmt.Printf("   Last sync: never\n")
		}
		if len(st.Errors) > 0 {
			fmt.Printf("   %s\n", ui.RenderErr(fmt.Sprintf("%d sync error(s):", len(st.Errors))))
			for _, msg := range st.Errors {
				fmt.Printf("     %s\n", msg)
			}
		}
		fmt.Println()
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "sync",
	Short:   "Show local store statistics",
	Run: func(cmd *cobra.Command, args []string) {
		db := openStore(cmd)
		defer db.Close()

		stats, err := db.Statistics(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading statistics: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s\n", ui.RenderAccent("Store statistics"))
		fmt.Printf("   Entries:       %d\n", stats.TotalEntries)
		fmt.Printf("   People:        %d\n", stats.TotalPeople)
		fmt.Printf("   Pending sync:  %d\n", stats.PendingSync)
		fmt.Printf("   Today entries: %d\n", stats.TodayEntries)
		fmt.Printf("   Today exits:   %d\n", stats.TodayExits)
		fmt.Println()
	},
}

var requeueCmd = &cobra.Command{
	Use:     "requeue <entry|person> <id>",
	GroupID: "sync",
	Short:   "Put a failed record back on the queue",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		eng, db, _ := openEngine(cmd, false)
		defer db.Close()

		subject := record.SubjectKind(args[0])
		if err := eng.Requeue(cmd.Context(), subject, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error requeueing: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Requeued %s %s\n", ui.RenderPass("✓"), subject, ui.RenderMuted(args[1]))
	},
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadYes, "yes", false, "confirm the destructive download")
	rootCmd.AddCommand(syncCmd, downloadCmd, statusCmd, statsCmd, requeueCmd)
}
