package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

func TestExportService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newCatalogFixture()
	catalog := src.service()

	for _, st := range []entity.Status{
		{ID: "new", Name: "New", Color: "#3b82f6"},
		{ID: "in_treatment", Name: "In treatment", Description: "Active care"},
	} {
		if _, err := catalog.AddStatus(ctx, st); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := catalog.AddRule(ctx, entity.TransitionRule{FromStatus: "new", ToStatus: "in_treatment", Name: "Start", RequiresApproval: true}); err != nil {
		t.Fatal(err)
	}

	from := "new"
	ts := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	states := &mockStateRepo{states: []*entity.WorkflowState{
		{PatientID: "p-1", CurrentStatusID: "in_treatment", PreviousStatusID: &from, Version: 2, UpdatedAt: ts},
	}}
	history := &mockHistoryRepo{entries: []*entity.HistoryEntry{
		{Sequence: 1, ID: "h-1", PatientID: "p-1", FromStatusID: &from, ToStatusID: "in_treatment", PerformedBy: "dr.a", Approved: true, Timestamp: ts},
	}}

	var buf bytes.Buffer
	if err := NewExportService(catalog, states, history, noopLogger{}).Export(ctx, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 4 {
		t.Errorf("sheets = %v, want 4", got)
	}
	patients, err := f.GetRows(SheetPatients)
	if err != nil {
		t.Fatal(err)
	}
	if len(patients) != 2 || patients[1][0] != "p-1" || patients[1][1] != "in_treatment" {
		t.Errorf("Patients sheet = %v", patients)
	}
	hist, err := f.GetRows(SheetHistory)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[1][6] != "yes" {
		t.Errorf("History sheet = %v", hist)
	}

	dst := newCatalogFixture()
	target := dst.service()
	if _, err := target.AddStatus(ctx, entity.Status{ID: "new", Name: "New"}); err != nil {
		t.Fatal(err)
	}

	result, err := NewExportService(target, &mockStateRepo{}, &mockHistoryRepo{}, noopLogger{}).
		ImportCatalog(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ImportCatalog() error = %v", err)
	}
	if result.StatusesAdded != 1 || result.StatusesSkipped != 1 {
		t.Errorf("statuses added/skipped = %d/%d, want 1/1", result.StatusesAdded, result.StatusesSkipped)
	}
	if result.RulesAdded != 1 || len(result.Errors) != 0 {
		t.Errorf("result = %+v", result)
	}

	rules := target.ListRules()
	if len(rules) != 1 || !rules[0].RequiresApproval {
		t.Errorf("imported rules = %+v", rules)
	}
	st, err := target.GetStatus("in_treatment")
	if err != nil || st.Description != "Active care" {
		t.Errorf("imported status = %+v, %v", st, err)
	}
}

func TestExportService_ImportReportsBadRows(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetStatuses); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet(SheetRules); err != nil {
		t.Fatal(err)
	}
	_ = f.SetSheetRow(SheetStatuses, "A1", &statusHeader)
	_ = f.SetSheetRow(SheetStatuses, "A2", &[]interface{}{"any", "Wildcard"})
	_ = f.SetSheetRow(SheetStatuses, "A3", &[]interface{}{"new", "New"})
	_ = f.SetSheetRow(SheetRules, "A1", &ruleHeader)
	_ = f.SetSheetRow(SheetRules, "A2", &[]interface{}{"new", "missing", "Broken", "no"})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	svc := NewExportService(newCatalogFixture().service(), &mockStateRepo{}, &mockHistoryRepo{}, noopLogger{})
	result, err := svc.ImportCatalog(context.Background(), &buf)
	if err != nil {
		t.Fatalf("ImportCatalog() error = %v", err)
	}
	if result.StatusesAdded != 1 {
		t.Errorf("StatusesAdded = %d, want 1", result.StatusesAdded)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 entries", result.Errors)
	}
}

func TestExportService_ImportRejectsMalformedStatuses(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetStatuses); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet(SheetRules); err != nil {
		t.Fatal(err)
	}
	_ = f.SetSheetRow(SheetStatuses, "A1", &statusHeader)
	_ = f.SetSheetRow(SheetStatuses, "A2", &[]interface{}{"Bad ID!", "Name", "#fff", ""})
	_ = f.SetSheetRow(SheetStatuses, "A3", &[]interface{}{"billing", "Billing", "red", ""})
	_ = f.SetSheetRow(SheetStatuses, "A4", &[]interface{}{"triage", "Tri\x07age", "#f59e0b", "first\x01 look"})
	_ = f.SetSheetRow(SheetRules, "A1", &ruleHeader)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	catalog := newCatalogFixture().service()
	result, err := NewExportService(catalog, &mockStateRepo{}, &mockHistoryRepo{}, noopLogger{}).
		ImportCatalog(context.Background(), &buf)
	if err != nil {
		t.Fatalf("ImportCatalog() error = %v", err)
	}

	if result.StatusesAdded != 1 || len(result.Errors) != 2 {
		t.Fatalf("result = %+v, want 1 added and 2 row errors", result)
	}
	if _, err := catalog.GetStatus("Bad ID!"); err == nil {
		t.Error("malformed id should not be registered")
	}
	st, err := catalog.GetStatus("triage")
	if err != nil {
		t.Fatalf("GetStatus(triage) error = %v", err)
	}
	if st.Name != "Triage" || st.Description != "first look" {
		t.Errorf("imported status = %+v, want control characters stripped", st)
	}
}
