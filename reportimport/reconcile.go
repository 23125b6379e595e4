package reportimport

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"github.com/sirupsen/logrus"
)

// ReportStore is the persistence the pipeline writes through.
type ReportStore interface {
	// FindLabelByName returns nil and no error when no label has exactly this name.
	FindLabelByName(ctx context.Context, name string) (*models.Label, error)
	// CreateReportRow writes the distributor table row for rec, linked to labelID.
	CreateReportRow(ctx context.Context, rec Record, labelID int, meta RowMeta) error
	CreateUnlinkedReport(ctx context.Context, report *models.UnlinkedReport) error
	CreateUnlinkedReportDetail(ctx context.Context, detail *models.UnlinkedReportDetail) error
}

// RunMeta identifies the import run rows belong to.
type RunMeta struct {
	JobID          string
	Distributor    models.Distributor
	ReportingMonth string
}

type RowMeta struct {
	RunMeta
	RowIndex int
}

// Month is the reporting month to store for rec: the run's month, or the row's own.
func (m RunMeta) Month(rec Record) string {
	if m.ReportingMonth != "" {
		return m.ReportingMonth
	}
	if rec != nil {
		return rec.Month()
	}
	return ""
}

type Disposition int

const (
	DispositionLinked Disposition = iota + 1
	DispositionUnlinked
	DispositionDropped
)

func (d Disposition) String() string {
	switch d {
	case DispositionLinked:
		return "linked"
	case DispositionUnlinked:
		return "unlinked"
	case DispositionDropped:
		return "dropped"
	}
	return "unknown"
}

// Counts aggregates row outcomes of a run.
type Counts struct {
	Linked            int `json:"linked"`
	Unlinked          int `json:"unlinked"`
	Dropped           int `json:"dropped"`
	MappingErrors     int `json:"mapping_errors"`
	PersistenceErrors int `json:"persistence_errors"`
	FlushErrors       int `json:"flush_errors"`
}

func (c *Counts) Add(d Disposition) {
	switch d {
	case DispositionLinked:
		c.Linked++
	case DispositionUnlinked:
		c.Unlinked++
	case DispositionDropped:
		c.Dropped++
	}
}

func (c Counts) Errors() int {
	return c.MappingErrors + c.PersistenceErrors + c.FlushErrors
}

type UnlinkedEntry struct {
	RowIndex int
	Record   Record
}

type UnlinkedBucket struct {
	LabelName      string
	ReportingMonth string
	Entries        []UnlinkedEntry
}

// UnlinkedAccumulator collects unmatched rows per label name and reporting month
// for one run. Buckets keep first-seen order and rows keep file order.
// The zero value is ready to use.
type UnlinkedAccumulator struct {
	order   []string
	buckets map[string]*UnlinkedBucket
}

func NewUnlinkedAccumulator() *UnlinkedAccumulator {
	return &UnlinkedAccumulator{buckets: map[string]*UnlinkedBucket{}}
}

// Add files rec under its label name and month, the month the run assigns to the row.
func (a *UnlinkedAccumulator) Add(rowIndex int, rec Record, month string) {
	if a.buckets == nil {
		a.buckets = map[string]*UnlinkedBucket{}
	}
	name := rec.LabelName()
	key := name + "\x00" + month
	b, ok := a.buckets[key]
	if !ok {
		b = &UnlinkedBucket{LabelName: name, ReportingMonth: month}
		a.buckets[key] = b
		a.order = append(a.order, key)
	}
	b.Entries = append(b.Entries, UnlinkedEntry{RowIndex: rowIndex, Record: rec})
}

func (a *UnlinkedAccumulator) Buckets() []*UnlinkedBucket {
	out := make([]*UnlinkedBucket, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, a.buckets[key])
	}
	return out
}

// Len is the number of buckets.
func (a *UnlinkedAccumulator) Len() int {
	return len(a.order)
}

type Reconciler struct {
	Store  ReportStore
	Logger logrus.FieldLogger
}

// Reconcile decides the disposition of one mapped row. Linked rows are written
// immediately; unlinked rows go to acc until the run flushes it.
func (r *Reconciler) Reconcile(ctx context.Context, meta RowMeta, rec Record, acc *UnlinkedAccumulator) (Disposition, error) {
	name := rec.LabelName()
	if strings.TrimSpace(name) == "" {
		if r.Logger != nil {
			r.Logger.WithField("row", meta.RowIndex).Warn("row has no label name, dropped")
		}
		return DispositionDropped, nil
	}

	label, err := r.Store.FindLabelByName(ctx, name)
	if err != nil {
		return 0, &RowPersistenceError{Op: "find label", LabelName: name, Err: err}
	}
	if label == nil {
		acc.Add(meta.RowIndex, rec, meta.Month(rec))
		return DispositionUnlinked, nil
	}

	if err := r.Store.CreateReportRow(ctx, rec, label.ID, meta); err != nil {
		return 0, &RowPersistenceError{Op: "create report row", LabelName: name, Err: err}
	}
	return DispositionLinked, nil
}

// ReconcileAll reconciles records in order, numbering them from 1. Row failures
// are collected and do not stop the loop.
func (r *Reconciler) ReconcileAll(ctx context.Context, run RunMeta, records []Record, acc *UnlinkedAccumulator) (Counts, []error) {
	var (
		counts Counts
		errs   []error
	)
	for i, rec := range records {
		d, err := r.Reconcile(ctx, RowMeta{RunMeta: run, RowIndex: i + 1}, rec, acc)
		if err != nil {
			counts.PersistenceErrors++
			errs = append(errs, err)
			continue
		}
		counts.Add(d)
	}
	return counts, errs
}
