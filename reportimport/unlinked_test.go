package reportimport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
)

func TestFlushUnlinkedIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.reportErr["Bad Report"] = errors.New("insert failed")
	store.detailErr[3] = errors.New("payload too large")

	acc := NewUnlinkedAccumulator()
	acc.Add(1, kontorRecord("Ghost Label"), "202402")
	acc.Add(2, kontorRecord("Bad Report"), "202402")
	acc.Add(3, kontorRecord("Ghost Label"), "202402")
	acc.Add(4, kontorRecord("Ghost Label"), "202402")
	acc.Add(5, kontorRecord("Other"), "202402")

	res := FlushUnlinked(ctx, store, acc, testRun, nil)
	if res.Reports != 2 {
		t.Fatalf("Reports = %d, want 2", res.Reports)
	}
	if res.Details != 3 {
		t.Fatalf("Details = %d, want 3", res.Details)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("Errors = %v", res.Errors)
	}
	if res.Errors[0].LabelName != "Bad Report" || res.Errors[0].RowIndex != 0 {
		t.Fatalf("first error = %+v", res.Errors[0])
	}
	if res.Errors[1].LabelName != "Ghost Label" || res.Errors[1].RowIndex != 3 {
		t.Fatalf("second error = %+v", res.Errors[1])
	}

	ghost := store.reports[0]
	if ghost.LabelName != "Ghost Label" || ghost.Count != 3 {
		t.Fatalf("ghost report = %+v", ghost)
	}
	details := store.detailsFor(ghost.ID)
	if len(details) != 2 || details[0].RowIndex != 1 || details[1].RowIndex != 4 {
		t.Fatalf("ghost details = %+v", details)
	}
	if store.reports[1].LabelName != "Other" {
		t.Fatalf("second report = %+v", store.reports[1])
	}
}

func TestFlushUnlinkedStoresRecordFields(t *testing.T) {
	store := newFakeStore()
	acc := NewUnlinkedAccumulator()
	acc.Add(7, kontorRecord("Ghost Label"), "202402")

	FlushUnlinked(context.Background(), store, acc, testRun, nil)
	if len(store.details) != 1 {
		t.Fatalf("details = %d", len(store.details))
	}
	var fields map[string]any
	if err := json.Unmarshal(store.details[0].Data, &fields); err != nil {
		t.Fatalf("detail data is not JSON: %v", err)
	}
	if fields["label"] != "Ghost Label" || fields["revenue_net"] != "1.5" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestFlushUnlinkedDoesNotMergeRuns(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	for i := 0; i < 2; i++ {
		var acc UnlinkedAccumulator
		acc.Add(1, kontorRecord("Ghost Label"), "202402")
		FlushUnlinked(ctx, store, &acc, testRun, nil)
	}
	if len(store.reports) != 2 {
		t.Fatalf("expected two independent reports, got %d", len(store.reports))
	}
	for _, r := range store.reports {
		if r.Count != 1 {
			t.Fatalf("report count = %d, want 1", r.Count)
		}
	}
}

func TestUnlinkedFlushErrorMessage(t *testing.T) {
	cause := errors.New("x")
	if msg := (&UnlinkedFlushError{LabelName: "L", Err: cause}).Error(); msg != `create unlinked report for "L": x` {
		t.Fatalf("message = %q", msg)
	}
	err := &UnlinkedFlushError{LabelName: "L", RowIndex: 2, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("Unwrap lost the cause")
	}
}

func TestUnlinkedRowsSplitByMonthWithoutJobMonth(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := &Reconciler{Store: store}
	run := RunMeta{JobID: "job-months", Distributor: models.DistributorKontor}
	acc := NewUnlinkedAccumulator()

	months := []string{"202401", "202402", "202401"}
	for i, month := range months {
		rec := kontorRecord("Ghost Label")
		rec.SalesMonth = month
		if _, err := r.Reconcile(ctx, RowMeta{RunMeta: run, RowIndex: i + 1}, rec, acc); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
	}

	res := FlushUnlinked(ctx, store, acc, run, nil)
	if res.Reports != 2 || len(res.Errors) != 0 {
		t.Fatalf("flush = %+v", res)
	}
	if store.reports[0].ReportingMonth != "202401" || store.reports[0].Count != 2 {
		t.Fatalf("first report = %+v", store.reports[0])
	}
	if store.reports[1].ReportingMonth != "202402" || store.reports[1].Count != 1 {
		t.Fatalf("second report = %+v", store.reports[1])
	}
	if details := store.detailsFor(store.reports[0].ID); len(details) != 2 || details[1].RowIndex != 3 {
		t.Fatalf("202401 details = %+v", details)
	}
}

func TestUnlinkedRowsShareJobMonth(t *testing.T) {
	acc := NewUnlinkedAccumulator()
	for i, month := range []string{"202401", "202402"} {
		rec := kontorRecord("Ghost Label")
		rec.SalesMonth = month
		acc.Add(i+1, rec, testRun.Month(rec))
	}
	if acc.Len() != 1 || acc.Buckets()[0].ReportingMonth != testRun.ReportingMonth {
		t.Fatalf("buckets = %+v", acc.Buckets())
	}
}
