package reportimport

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"github.com/shopspring/decimal"
)

func kontorRecord(label string) *KontorRecord {
	return &KontorRecord{Label: label, Quantity: 1, RevenueNet: decimal.RequireFromString("1.5"), SalesMonth: "202401"}
}

var testRun = RunMeta{JobID: "job-1", Distributor: models.DistributorKontor, ReportingMonth: "202402"}

func TestReconcileLinksKnownLabel(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore("Legion Records")
	r := &Reconciler{Store: store}
	acc := NewUnlinkedAccumulator()

	d, err := r.Reconcile(ctx, RowMeta{RunMeta: testRun, RowIndex: 1}, kontorRecord("Legion Records"), acc)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if d != DispositionLinked {
		t.Fatalf("disposition = %s", d)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected one report row, got %d", len(store.rows))
	}
	if store.rows[0].LabelID != store.labels["Legion Records"].ID {
		t.Fatalf("row linked to %d", store.rows[0].LabelID)
	}
	if acc.Len() != 0 {
		t.Fatalf("accumulator should be empty, has %d", acc.Len())
	}
	res := FlushUnlinked(ctx, store, acc, testRun, nil)
	if res.Reports != 0 || len(store.reports) != 0 {
		t.Fatalf("unexpected unlinked reports: %+v", res)
	}
}

func TestReconcileAccumulatesUnknownLabel(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore("Legion Records")
	r := &Reconciler{Store: store}
	acc := NewUnlinkedAccumulator()

	d, err := r.Reconcile(ctx, RowMeta{RunMeta: testRun, RowIndex: 4}, kontorRecord("Ghost Label"), acc)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if d != DispositionUnlinked {
		t.Fatalf("disposition = %s", d)
	}
	if len(store.rows) != 0 || len(store.reports) != 0 {
		t.Fatalf("unlinked rows must not be written before the flush")
	}

	res := FlushUnlinked(ctx, store, acc, testRun, nil)
	if res.Reports != 1 || res.Details != 1 || len(res.Errors) != 0 {
		t.Fatalf("flush = %+v", res)
	}
	report := store.reports[0]
	if report.LabelName != "Ghost Label" || report.Count != 1 || report.Status != models.UnlinkedStatusPending {
		t.Fatalf("report = %+v", report)
	}
	if report.ReportingMonth != "202402" || report.ImportJobId != "job-1" || report.Distributor != models.DistributorKontor {
		t.Fatalf("report meta = %+v", report)
	}
	details := store.detailsFor(report.ID)
	if len(details) != 1 || details[0].RowIndex != 4 {
		t.Fatalf("details = %+v", details)
	}
}

func TestReconcileIsCaseSensitive(t *testing.T) {
	store := newFakeStore("Legion Records")
	r := &Reconciler{Store: store}
	acc := NewUnlinkedAccumulator()
	d, err := r.Reconcile(context.Background(), RowMeta{RunMeta: testRun, RowIndex: 1}, kontorRecord("legion records"), acc)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if d != DispositionUnlinked {
		t.Fatalf("disposition = %s, want unlinked", d)
	}
}

func TestReconcileDropsEmptyLabel(t *testing.T) {
	store := newFakeStore("Legion Records")
	r := &Reconciler{Store: store}
	acc := NewUnlinkedAccumulator()
	for _, name := range []string{"", "   "} {
		d, err := r.Reconcile(context.Background(), RowMeta{RunMeta: testRun, RowIndex: 1}, kontorRecord(name), acc)
		if err != nil {
			t.Fatalf("Reconcile(%q): %v", name, err)
		}
		if d != DispositionDropped {
			t.Fatalf("Reconcile(%q) = %s", name, d)
		}
	}
	if store.findCall != 0 || acc.Len() != 0 || len(store.rows) != 0 {
		t.Fatalf("dropped rows must not touch the store or accumulator")
	}
}

func TestReconcilePersistenceErrors(t *testing.T) {
	boom := errors.New("db down")
	store := newFakeStore("Legion Records")
	store.findErr["Broken"] = boom
	store.rowErr["Legion Records"] = boom
	r := &Reconciler{Store: store}
	acc := NewUnlinkedAccumulator()

	for _, name := range []string{"Broken", "Legion Records"} {
		_, err := r.Reconcile(context.Background(), RowMeta{RunMeta: testRun, RowIndex: 1}, kontorRecord(name), acc)
		var perr *RowPersistenceError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: expected *RowPersistenceError, got %v", name, err)
		}
		if !errors.Is(err, boom) {
			t.Fatalf("%s: error does not wrap cause", name)
		}
	}
	if acc.Len() != 0 {
		t.Fatalf("failed rows must not be accumulated")
	}
}

func TestReconcileAllKeepsOrderAndCounts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore("Legion Records")
	store.rowErr["Flaky"] = errors.New("nope")
	store.labels["Flaky"] = &models.Label{ID: 99, Name: "Flaky"}
	r := &Reconciler{Store: store}
	acc := NewUnlinkedAccumulator()

	records := []Record{
		kontorRecord("Ghost B"),
		kontorRecord("Legion Records"),
		kontorRecord("Ghost A"),
		kontorRecord("Flaky"),
		kontorRecord(""),
		kontorRecord("Ghost B"),
	}
	counts, errs := r.ReconcileAll(ctx, testRun, records, acc)
	want := Counts{Linked: 1, Unlinked: 3, Dropped: 1, PersistenceErrors: 1}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v", errs)
	}

	buckets := acc.Buckets()
	if len(buckets) != 2 || buckets[0].LabelName != "Ghost B" || buckets[1].LabelName != "Ghost A" {
		t.Fatalf("bucket order = %+v", buckets)
	}
	if got := buckets[0].Entries; len(got) != 2 || got[0].RowIndex != 1 || got[1].RowIndex != 6 {
		t.Fatalf("Ghost B entries = %+v", got)
	}
}

func TestRunMetaMonthFallsBackToRecord(t *testing.T) {
	run := RunMeta{JobID: "j", Distributor: models.DistributorKontor}
	if got := run.Month(kontorRecord("x")); got != "202401" {
		t.Fatalf("Month = %q", got)
	}
	if got := run.Month(nil); got != "" {
		t.Fatalf("Month(nil) = %q", got)
	}
}
