package resolve

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Review reasons.
const reasonNoMatch = "No deterministic match"

func reasonLowConfidence(c float64) string {
	return "Low confidence (" + strconv.FormatFloat(c, 'f', -1, 64) + ")"
}

// Summary holds the run totals.
type Summary struct {
	ProgramsTotal              int `json:"programs_total"`
	OrganizationsMatched       int `json:"organizations_matched"`
	OrganizationsNeedingReview int `json:"organizations_needing_review"`
	LinksCreated               int `json:"links_created"`
	LinksNeedingReview         int `json:"links_needing_review"`
	ManualOverridesApplied     int `json:"manual_overrides_applied"`
	BackreferenceConflicts     int `json:"backreference_conflicts"`
	WriteFailures              int `json:"write_failures"`
}

// LinkReview is a program whose intervention link needs a human decision.
type LinkReview struct {
	ProgramID   string `json:"program_id"`
	ProgramName string `json:"program_name"`
	Reason      string `json:"reason"`
}

// BackrefConflict records a forward link whose intervention back-reference
// was already held by another program at write time.
type BackrefConflict struct {
	ProgramID          string `json:"program_id"`
	AlmaInterventionID string `json:"alma_intervention_id"`
}

// WriteFailure records a conditional write that returned an error.
type WriteFailure struct {
	ProgramID string `json:"program_id"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// Report is the structured output of one linker run.
type Report struct {
	GeneratedAt             time.Time         `json:"generated_at"`
	DryRun                  bool              `json:"dry_run,omitempty"`
	Summary                 Summary           `json:"summary"`
	ManualOverridesApplied  []ManualOverride  `json:"manual_overrides_applied"`
	OrganizationMatches     []OrgMatch        `json:"organization_matches"`
	OrganizationNeedsReview []OrgReview       `json:"organization_needs_review"`
	LinkUpdates             []LinkDecision    `json:"link_updates"`
	LinkNeedsReview         []LinkReview      `json:"link_needs_review"`
	BackreferenceConflicts  []BackrefConflict `json:"backreference_conflicts"`
	WriteFailures           []WriteFailure    `json:"write_failures"`

	// Untruncated review queues for the workbook export.
	allOrgReview  []OrgReview
	allLinkReview []LinkReview
}

func newReport(now time.Time, dryRun bool) *Report {
	return &Report{
		GeneratedAt:             now.UTC(),
		DryRun:                  dryRun,
		ManualOverridesApplied:  []ManualOverride{},
		OrganizationMatches:     []OrgMatch{},
		OrganizationNeedsReview: []OrgReview{},
		LinkUpdates:             []LinkDecision{},
		LinkNeedsReview:         []LinkReview{},
		BackreferenceConflicts:  []BackrefConflict{},
		WriteFailures:           []WriteFailure{},
	}
}

// finalize fills the summary from the full lists, then truncates the
// review samples.
func (r *Report) finalize(programs, orgSample, linkSample int) {
	r.allOrgReview = r.OrganizationNeedsReview
	r.allLinkReview = r.LinkNeedsReview

	r.Summary = Summary{
		ProgramsTotal:              programs,
		OrganizationsMatched:       len(r.OrganizationMatches),
		OrganizationsNeedingReview: len(r.OrganizationNeedsReview),
		LinksCreated:               len(r.LinkUpdates),
		LinksNeedingReview:         len(r.LinkNeedsReview),
		ManualOverridesApplied:     len(r.ManualOverridesApplied),
		BackreferenceConflicts:     len(r.BackreferenceConflicts),
		WriteFailures:              len(r.WriteFailures),
	}

	if orgSample >= 0 && len(r.OrganizationNeedsReview) > orgSample {
		r.OrganizationNeedsReview = r.OrganizationNeedsReview[:orgSample]
	}
	if linkSample >= 0 && len(r.LinkNeedsReview) > linkSample {
		r.LinkNeedsReview = r.LinkNeedsReview[:linkSample]
	}
}

// WriteReport writes the report as indented JSON, creating parent directories.
func WriteReport(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "resolve: create report dir %s", dir)
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return eris.Wrap(err, "resolve: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "resolve: write report %s", path)
	}
	return nil
}

// WriteReviewWorkbook exports the full review queues to an xlsx workbook
// with one sheet per queue.
func WriteReviewWorkbook(path string, r *Report) error {
	f := xlsx.NewFile()

	orgSheet, err := f.AddSheet("Organization Review")
	if err != nil {
		return eris.Wrap(err, "resolve: add organization sheet")
	}
	addRow(orgSheet, "program_id", "organization")
	for _, rv := range r.allOrgReview {
		addRow(orgSheet, rv.ProgramID, rv.Organization)
	}

	linkSheet, err := f.AddSheet("Link Review")
	if err != nil {
		return eris.Wrap(err, "resolve: add link sheet")
	}
	addRow(linkSheet, "program_id", "program_name", "reason")
	for _, rv := range r.allLinkReview {
		addRow(linkSheet, rv.ProgramID, rv.ProgramName, rv.Reason)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "resolve: create workbook dir %s", dir)
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "resolve: save workbook %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
