package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusgate/gatelog/internal/record"
	"github.com/campusgate/gatelog/internal/store"
	"github.com/campusgate/gatelog/internal/ui"
)

var entryCmd = &cobra.Command{
	Use:     "entry",
	GroupID: "records",
	Short:   "Record and list attendance events",
}

var entryAddFlags struct {
	name       string
	kind       string
	enrollment string
	course     string
	branch     string
	semester   string
	date       string
	timeOfDay  string
}

var entryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record an entry or exit event",
	Long: `Record an attendance event in the local store and queue it for
delivery. Works fully offline; if online, delivery is attempted in the
background right away.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, db, _ := openEngine(cmd, false)
		defer db.Close()

		entry := &record.Entry{
			Kind:         record.EntryKind(entryAddFlags.kind),
			PersonName:   entryAddFlags.name,
			EnrollmentNo: entryAddFlags.enrollment,
			Course:       entryAddFlags.course,
			Branch:       entryAddFlags.branch,
			Semester:     entryAddFlags.semester,
			Date:         entryAddFlags.date,
			Time:         entryAddFlags.timeOfDay,
		}
		id, err := eng.AddEntry(cmd.Context(), entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error recording event: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Recorded %s for %q\n", ui.RenderPass("✓"), entry.Kind, entry.PersonName)
		fmt.Printf("   %s\n", ui.RenderMuted(id))
	},
}

var entryListFlags struct {
	date   string
	kind   string
	course string
	limit  int
	today  bool
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance events, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		db := openStore(cmd)
		defer db.Close()

		date := entryListFlags.date
		if entryListFlags.today {
			date = time.Now().Format(record.DateLayout)
		}
		entries, err := db.Entries(cmd.Context(), store.EntryFilter{
			Date:   date,
			Kind:   record.EntryKind(entryListFlags.kind),
			Course: entryListFlags.course,
			Limit:  entryListFlags.limit,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing events: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("No events found")
			return
		}

		fmt.Printf("%s\n", ui.RenderAccent(fmt.Sprintf("%d event(s)", len(entries))))
		for _, e := range entries {
			state := ui.SyncStateStyle(string(e.SyncState)).Render(string(e.SyncState))
			fmt.Printf("  %s %s  %-5s %-24s %-12s %s\n",
				e.Date, e.Time, e.Kind, e.PersonName, e.EnrollmentNo, state)
		}
	},
}

func init() {
	entryAddCmd.Flags().StringVar(&entryAddFlags.name, "name", "", "person name (required)")
	entryAddCmd.Flags().StringVar(&entryAddFlags.kind, "type", "entry", "event type: entry or exit")
	entryAddCmd.Flags().StringVar(&entryAddFlags.enrollment, "enrollment", "", "enrollment number")
	entryAddCmd.Flags().StringVar(&entryAddFlags.course, "course", "", "course")
	entryAddCmd.Flags().StringVar(&entryAddFlags.branch, "branch", "", "branch")
	entryAddCmd.Flags().StringVar(&entryAddFlags.semester, "semester", "", "semester")
	entryAddCmd.Flags().StringVar(&entryAddFlags.date, "date", "", "event date (dd/mm/yyyy, default today)")
	entryAddCmd.Flags().StringVar(&entryAddFlags.timeOfDay, "time", "", "event time (hh:mm:ss, default now)")
	_ = entryAddCmd.MarkFlagRequired("name")

	entryListCmd.Flags().StringVar(&entryListFlags.date, "date", "", "filter by date (dd/mm/yyyy)")
	entryListCmd.Flags().StringVar(&entryListFlags.kind, "type", "", "filter by type: entry or exit")
	entryListCmd.Flags().StringVar(&entryListFlags.course, "course", "", "filter by course")
	entryListCmd.Flags().IntVar(&entryListFlags.limit, "limit", 50, "maximum events to show (0 = all)")
	entryListCmd.Flags().BoolVar(&entryListFlags.today, "today", false, "only today's events")

	entryCmd.AddCommand(entryAddCmd, entryListCmd)
	rootCmd.AddCommand(entryCmd)
}
