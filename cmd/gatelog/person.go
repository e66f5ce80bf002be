package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusgate/gatelog/internal/record"
	"github.com/campusgate/gatelog/internal/store"
	"github.com/campusgate/gatelog/internal/ui"
)

var personCmd = &cobra.Command{
	Use:     "person",
	GroupID: "records",
	Short:   "Register and list people",
}

var personAddFlags struct {
	name       string
	enrollment string
	email      string
	phone      string
	course     string
	branch     string
	semester   string
}

var personAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a person",
	Run: func(cmd *cobra.Command, args []string) {
		eng, db, _ := openEngine(cmd, false)
		defer db.Close()

		p := &record.Person{
			Name:         personAddFlags.name,
			EnrollmentNo: personAddFlags.enrollment,
			Email:        personAddFlags.email,
			Phone:        personAddFlags.phone,
			Course:       personAddFlags.course,
			Branch:       personAddFlags.branch,
			Semester:     personAddFlags.semester,
		}
		id, err := eng.AddPerson(cmd.Context(), p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error registering person: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Registered %q\n", ui.RenderPass("✓"), p.Name)
		fmt.Printf("   %s\n", ui.RenderMuted(id))
	},
}

var personListFlags struct {
	course string
	search string
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered people",
	Run: func(cmd *cobra.Command, args []string) {
		db := openStore(cmd)
		defer db.Close()

		people, err := db.People(cmd.Context(), store.PersonFilter{
			Course: personListFlags.course,
			Search: personListFlags.search,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing people: %v\n", err)
			os.Exit(1)
		}
		if len(people) == 0 {
			fmt.Println("No people found")
			return
		}

		fmt.Printf("%s\n", ui.RenderAccent(fmt.Sprintf("%d person(s)", len(people))))
		for _, p := range people {
			state := ui.SyncStateStyle(string(p.SyncState)).Render(string(p.SyncState))
			fmt.Printf("  %-24s %-12s %-20s %s  %s\n",
				p.Name, p.EnrollmentNo, p.Course, state, ui.RenderMuted(p.ID))
		}
	},
}

func init() {
	personAddCmd.Flags().StringVar(&personAddFlags.name, "name", "", "person name (required)")
	personAddCmd.Flags().StringVar(&personAddFlags.enrollment, "enrollment", "", "enrollment number")
	personAddCmd.Flags().StringVar(&personAddFlags.email, "email", "", "email address")
	personAddCmd.Flags().StringVar(&personAddFlags.phone, "phone", "", "phone number")
	personAddCmd.Flags().StringVar(&personAddFlags.course, "course", "", "course")
	personAddCmd.Flags().StringVar(&personAddFlags.branch, "branch", "", "branch")
	personAddCmd.Flags().StringVar(&personAddFlags.semester, "semester", "", "semester")
	_ = personAddCmd.MarkFlagRequired("name")

	personListCmd.Flags().StringVar(&personListFlags.course, "course", "", "filter by course")
	personListCmd.Flags().StringVar(&personListFlags.search, "search", "", "substring match over name, enrollment and email")

	personCmd.AddCommand(personAddCmd, personListCmd)
	rootCmd.AddCommand(personCmd)
}
