package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
)

// Workbook sheet names
const (
	SheetStatuses = "Statuses"
	SheetRules    = "Rules"
	SheetPatients = "Patients"
	SheetHistory  = "History"
)

var (
	statusHeader  = []interface{}{"ID", "Name", "Color", "Description"}
	ruleHeader    = []interface{}{"From", "To", "Name", "Requires Approval"}
	patientHeader = []interface{}{"Patient ID", "Current Status", "Previous Status", "Assigned To", "Notes", "Version", "Updated At"}
	historyHeader = []interface{}{"Seq", "Entry ID", "Patient ID", "From", "To", "Performed By", "Approved", "Notes", "Timestamp"}
)

// ErrInvalidWorkbook is returned when an uploaded workbook cannot be read
var ErrInvalidWorkbook = errors.New("invalid workbook")

// ImportResult counts what an import changed
type ImportResult struct {
	StatusesAdded   int      `json:"statuses_added"`
	StatusesSkipped int      `json:"statuses_skipped"`
	RulesAdded      int      `json:"rules_added"`
	RulesSkipped    int      `json:"rules_skipped"`
	Errors          []string `json:"errors,omitempty"`
}

// ExportService moves workflow data in and out of .xlsx workbooks
type ExportService interface {
	// Export writes statuses, rules, patient states and history to w
	Export(ctx context.Context, w io.Writer) error
	// ImportCatalog adds the statuses and rules found in a workbook.
	// Entries that already exist are skipped.
	ImportCatalog(ctx context.Context, r io.Reader) (*ImportResult, error)
}

type exportServiceImpl struct {
	catalog CatalogService
	states  port.WorkflowStateRepository
	history port.HistoryRepository
	logger  Logger
}

// NewExportService creates a new ExportService
func NewExportService(catalog CatalogService, states port.WorkflowStateRepository, history port.HistoryRepository, logger Logger) ExportService {
	return &exportServiceImpl{
		catalog: catalog,
		states:  states,
		history: history,
		logger:  logger,
	}
}

// Export implements ExportService
func (s *exportServiceImpl) Export(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetStatuses); err != nil {
		return fmt.Errorf("failed to prepare workbook: %w", err)
	}
	for _, sheet := range []string{SheetRules, SheetPatients, SheetHistory} {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	statuses := s.catalog.ListStatuses()
	statusRows := make([][]interface{}, 0, len(statuses))
	for _, st := range statuses {
		statusRows = append(statusRows, []interface{}{st.ID, st.Name, st.Color, st.Description})
	}
	if err := writeSheet(f, SheetStatuses, statusHeader, statusRows); err != nil {
		return err
	}

	rules := s.catalog.ListRules()
	ruleRows := make([][]interface{}, 0, len(rules))
	for _, r := range rules {
		ruleRows = append(ruleRows, []interface{}{r.FromStatus, r.ToStatus, r.Name, yesNo(r.RequiresApproval)})
	}
	if err := writeSheet(f, SheetRules, ruleHeader, ruleRows); err != nil {
		return err
	}

	states, err := s.states.List(ctx, 0, 0)
	if err != nil {
		return domainwf.WrapStorage("list workflow states", err)
	}
	patientRows := make([][]interface{}, 0, len(states))
	for _, st := range states {
		patientRows = append(patientRows, []interface{}{
			st.PatientID, st.CurrentStatusID, deref(st.PreviousStatusID), deref(st.AssignedTo),
			st.Notes, st.Version, st.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := writeSheet(f, SheetPatients, patientHeader, patientRows); err != nil {
		return err
	}

	entries, err := s.history.List(ctx, 0, 0)
	if err != nil {
		return domainwf.WrapStorage("list history", err)
	}
	historyRows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		historyRows = append(historyRows, []interface{}{
			e.Sequence, e.ID, e.PatientID, e.From(), e.ToStatusID, e.PerformedBy,
			yesNo(e.Approved), e.Notes, e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	if err := writeSheet(f, SheetHistory, historyHeader, historyRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Workflow exported",
		"statuses", len(statuses), "rules", len(rules), "patients", len(states), "history", len(entries))
	return nil
}

// ImportCatalog implements ExportService
func (s *exportServiceImpl) ImportCatalog(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	result := &ImportResult{}

	statusRows, err := f.GetRows(SheetStatuses)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %s: %v", ErrInvalidWorkbook, SheetStatuses, err)
	}
	for i, row := range dataRows(statusRows) {
		status := entity.Status{
			ID:          cell(row, 0),
			Name:        cell(row, 1),
			Color:       cell(row, 2),
			Description: cell(row, 3),
		}
		if status.Name == "" {
			status.Name = status.ID
		}

		_, err := s.catalog.AddStatus(ctx, status)
		switch {
		case err == nil:
			result.StatusesAdded++
		case errors.Is(err, domainwf.ErrDuplicateID):
			result.StatusesSkipped++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("%s row %d: %v", SheetStatuses, i+2, err))
		}
	}

	ruleRows, err := f.GetRows(SheetRules)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %s: %v", ErrInvalidWorkbook, SheetRules, err)
	}
	for i, row := range dataRows(ruleRows) {
		rule := entity.TransitionRule{
			FromStatus:       cell(row, 0),
			ToStatus:         cell(row, 1),
			Name:             cell(row, 2),
			RequiresApproval: parseYes(cell(row, 3)),
		}

		_, err := s.catalog.AddRule(ctx, rule)
		switch {
		case err == nil:
			result.RulesAdded++
		case errors.Is(err, domainwf.ErrDuplicateRule):
			result.RulesSkipped++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("%s row %d: %v", SheetRules, i+2, err))
		}
	}

	s.logger.Info("Workflow catalog imported",
		"statuses_added", result.StatusesAdded, "rules_added", result.RulesAdded, "errors", len(result.Errors))
	return result, nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// dataRows drops the header row and blank rows
func dataRows(rows [][]string) [][]string {
	if len(rows) <= 1 {
		return nil
	}
	out := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if cell(row, 0) == "" {
			continue
		}
		out = append(out, row)
	}
	return out
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseYes(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "y", "x":
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
