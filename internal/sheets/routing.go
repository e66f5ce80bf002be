package sheets

import "strings"

// CatchAllSheet receives entries for visitors, parents, teachers, staff
// and any record missing course or branch information.
const CatchAllSheet = "VISITORS"

// DefaultEntrySheets lists the per-course/branch destinations of the
// deployed spreadsheet. Configurable; routing falls back to the first
// configured sheet when nothing else matches.
var DefaultEntrySheets = []string{
	"B.E COMPUTER ENGINEERING",
	"B.E MECHANICAL ENGINEERING",
	"B.E ELECTRICAL ENGINEERING",
	"B.E CIVIL ENGINEERING",
	"DIPLOMA COMPUTER ENGINEERING",
	"DIPLOMA MECHANICAL ENGINEERING",
	"DIPLOMA ELECTRICAL ENGINEERING",
	"DIPLOMA CIVIL ENGINEERING",
	"BSC IT",
	"MSC IT",
	CatchAllSheet,
}

// Router derives the destination sheet for entry rows from course and
// branch. People rows always go to a single People sheet.
type Router struct {
	EntrySheets []string
	PeopleSheet string
}

// NewRouter builds a router over the configured sheet list. Empty
// arguments fall back to the defaults.
func NewRouter(entrySheets []string, peopleSheet string) *Router {
	if len(entrySheets) == 0 {
		entrySheets = DefaultEntrySheets
	}
	if peopleSheet == "" {
		peopleSheet = "People"
	}
	return &Router{EntrySheets: entrySheets, PeopleSheet: peopleSheet}
}

func normalize(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func emptyOrNA(v string) bool {
	switch v {
	case "", "N/A", "NA", "NONE", "N.A.":
		return true
	}
	return false
}

// nonStudentTokens route to the catch-all sheet wherever they appear in
// course or branch.
var nonStudentTokens = []string{"VISITOR", "PARENT", "TEACHER", "STAFF"}

// SheetFor returns the destination sheet for an entry with the given
// course and branch.
//
// Routing rules, in order: missing/N-A course or branch and non-student
// records go to the catch-all sheet; BSC/MSC with an IT branch map to
// the combined IT sheets; an exact match of "COURSE BRANCH" against the
// configured list wins; B.E and DIPLOMA records map by branch keyword;
// anything left routes to the first configured sheet so writes never
// fail for want of a destination.
func (r *Router) SheetFor(course, branch string) string {
	nc := normalize(course)
	nb := normalize(branch)

	if emptyOrNA(nc) || emptyOrNA(nb) {
		return CatchAllSheet
	}

	if nc == "BSC" && nb == "IT" {
		return "BSC IT"
	}
	if nc == "MSC" && nb == "IT" {
		return "MSC IT"
	}

	for _, tok := range nonStudentTokens {
		if strings.Contains(nc, tok) || strings.Contains(nb, tok) {
			return CatchAllSheet
		}
	}

	candidate := strings.TrimSpace(nc + " " + nb)
	for _, name := range r.EntrySheets {
		if name == candidate {
			return name
		}
	}

	if strings.Contains(nc, "B.E") || nc == "BE" {
		if s, ok := branchSheet("B.E", nb); ok {
			return s
		}
	}
	if strings.Contains(nc, "DIPLOMA") {
		if s, ok := branchSheet("DIPLOMA", nb); ok {
			return s
		}
	}
	if nc == "BSC" {
		return "BSC IT"
	}
	if nc == "MSC" {
		return "MSC IT"
	}

	return r.EntrySheets[0]
}

func branchSheet(prefix, branch string) (string, bool) {
	for _, kw := range []string{"COMPUTER", "MECHANICAL", "ELECTRICAL", "CIVIL"} {
		if strings.Contains(branch, kw) {
			return prefix + " " + kw + " ENGINEERING", true
		}
	}
	return "", false
}
