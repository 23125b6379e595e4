package reportimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("royalty-report-import")

// JobData is the payload a queued import carries.
type JobData struct {
	FilePath       string             `json:"file_path" validate:"required"`
	Distributor    models.Distributor `json:"distributor" validate:"required,oneof=kontor believe"`
	ReportingMonth string             `json:"reporting_month" validate:"omitempty,len=6,numeric"`
}

// Job is one dispatch of an import by the queue runtime.
type Job interface {
	ID() string
	Data() JobData
	// UpdateProgress reports percent complete, 0 to 100.
	UpdateProgress(ctx context.Context, percent int) error
}

type State string

const (
	StatePending     State = "pending"
	StateResuming    State = "resuming"
	StateReading     State = "reading"
	StateReconciling State = "reconciling"
	StateCleanup     State = "cleanup"
	StateDone        State = "done"
)

// Result describes a finished run. Err is set only for job-level failures;
// row failures are counted in Counts and written to the error log.
// Retryable marks a failure that leaves the job resumable: the input file
// and the progress cursor are kept.
type Result struct {
	JobID        string
	States       []State
	Err          error
	Retryable    bool
	ResumedFrom  int
	TotalRows    int
	Processed    int
	Counts       Counts
	Flush        FlushResult
	ErrorLogPath string
	StartedAt    time.Time
	FinishedAt   time.Time
}

func (r *Result) enter(s State) {
	r.States = append(r.States, s)
}

// Status maps the run onto the job row status.
func (r Result) Status() string {
	switch {
	case r.Err != nil && r.Retryable:
		return models.ImportStatusRetrying
	case r.Err != nil:
		return models.ImportStatusFailed
	case r.Counts.Errors() > 0:
		return models.ImportStatusPartial
	default:
		return models.ImportStatusSuccess
	}
}

func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Importer runs report import jobs. Rows are processed strictly in file order.
type Importer struct {
	Store    ReportStore
	Progress ProgressStore
	// Locker is optional. When set every run holds its job lock, and also the
	// distributor/month lock when PeriodLock is set.
	Locker     Locker
	PeriodLock bool
	Logger     logrus.FieldLogger
	// ErrorLogDir defaults to the directory of the input file.
	ErrorLogDir string
	// CleanupProgress deletes the resume cursor after a run without a job-level failure.
	CleanupProgress bool
	// KeepInput leaves the input file in place after the run.
	KeepInput bool

	now  func() time.Time
	open func(path string, d models.Distributor) (*ReportReader, error)
}

func (im *Importer) clock() time.Time {
	if im.now != nil {
		return im.now()
	}
	return time.Now()
}

func (im *Importer) openReport(path string, d models.Distributor) (*ReportReader, error) {
	if im.open != nil {
		return im.open(path, d)
	}
	return OpenReport(path, d)
}

func (im *Importer) logger() logrus.FieldLogger {
	if im.Logger != nil {
		return im.Logger
	}
	return logrus.StandardLogger()
}

// Run executes job to completion. It never returns an error to the queue:
// job-level failures end the run early and are reported in Result.Err.
func (im *Importer) Run(ctx context.Context, job Job) (res Result) {
	data := job.Data()
	jobID := job.ID()
	run := RunMeta{JobID: jobID, Distributor: data.Distributor, ReportingMonth: data.ReportingMonth}

	res = Result{JobID: jobID, StartedAt: im.clock()}
	res.enter(StatePending)

	ctx, span := tracer.Start(ctx, "reportimport.Run", trace.WithAttributes(
		attribute.String("import.job_id", jobID),
		attribute.String("import.distributor", string(data.Distributor)),
		attribute.String("import.reporting_month", data.ReportingMonth),
	))
	logger := im.logger().WithFields(logrus.Fields{
		"job_id":          jobID,
		"distributor":     data.Distributor,
		"reporting_month": data.ReportingMonth,
	})
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		logger = logger.WithField("correlation_id", correlationId)
	}

	defer func() {
		res.FinishedAt = im.clock()
		if res.States[len(res.States)-1] != StateDone {
			res.enter(StateDone)
		}
		span.SetAttributes(
			attribute.Int("import.rows", res.Processed),
			attribute.Int("import.linked", res.Counts.Linked),
			attribute.Int("import.unlinked", res.Counts.Unlinked),
			attribute.Int("import.errors", res.Counts.Errors()),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()

	abort := func(err error, msg string) Result {
		res.Err = err
		logger.WithError(err).Error(msg)
		return res
	}
	retry := func(err error, msg string) Result {
		res.Err = err
		res.Retryable = true
		logger.WithError(err).Warn(msg)
		return res
	}

	if err := utils.ValidateStruct(data); err != nil {
		return abort(err, "invalid import job")
	}
	if _, err := os.Stat(data.FilePath); err != nil {
		return abort(&FileReadError{Path: data.FilePath, Err: err}, "report file unavailable, job abandoned")
	}

	if im.Locker != nil {
		keys := []string{JobLockKey(jobID)}
		if im.PeriodLock {
			keys = append(keys, LockKey(data.Distributor, data.ReportingMonth))
		}
		for _, key := range keys {
			lock, err := im.Locker.Obtain(ctx, key)
			if err != nil {
				return retry(err, "could not obtain import lock")
			}
			defer func(key string) {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					logger.WithError(err).WithField("lock_key", key).Warn("release import lock")
				}
			}(key)
		}
	}

	start, err := im.Progress.Get(ctx, jobID)
	if err != nil {
		return retry(fmt.Errorf("read progress: %w", err), "could not read job progress")
	}
	if start > 0 {
		res.enter(StateResuming)
		res.ResumedFrom = start
		logger.WithField("row", start).Info("resuming import")
	}

	res.enter(StateReading)
	total, err := CountRows(data.FilePath, data.Distributor)
	if err != nil {
		return retry(err, "could not read report")
	}
	res.TotalRows = total

	reader, err := im.openReport(data.FilePath, data.Distributor)
	if err != nil {
		return retry(err, "could not read report")
	}
	defer reader.Close()
	if missing := reader.MissingColumns(); len(missing) > 0 {
		logger.WithField("missing_columns", missing).Warn("report header lacks expected columns")
	}
	if start > 0 {
		if _, err := reader.Skip(start); err != nil {
			return retry(err, "could not skip processed rows")
		}
	}

	logDir := im.ErrorLogDir
	if logDir == "" {
		logDir = filepath.Dir(data.FilePath)
	}
	errLog := NewErrorLog(logDir, jobID)
	rowFailed := func(row int, err error) {
		if werr := errLog.Append(row, err.Error()); werr != nil {
			logger.WithError(werr).Error("write error log")
		}
		logger.WithField("row", row).Warn(err.Error())
	}

	res.enter(StateReconciling)
	reconciler := &Reconciler{Store: im.Store, Logger: logger}
	acc := NewUnlinkedAccumulator()
	lastPercent := -1

	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// the stream broke: keep what was reconciled, leave the input for a retry
			res.Err = err
			res.Retryable = true
			logger.WithError(err).Error("report stream failed")
			break
		}
		res.Processed++

		if row.Err != nil {
			res.Counts.MappingErrors++
			rowFailed(row.Index, row.Err)
			continue
		}

		disposition, err := reconciler.Reconcile(ctx, RowMeta{RunMeta: run, RowIndex: row.Index}, row.Record, acc)
		if err != nil {
			res.Counts.PersistenceErrors++
			rowFailed(row.Index, err)
			continue
		}
		res.Counts.Add(disposition)

		if err := im.Progress.Set(ctx, jobID, row.Index); err != nil {
			logger.WithError(err).WithField("row", row.Index).Warn("save progress")
		}
		if pct := percent(row.Index, total); pct != lastPercent {
			lastPercent = pct
			if err := job.UpdateProgress(ctx, pct); err != nil {
				logger.WithError(err).Warn("update job progress")
			}
		}
	}

	res.Flush = FlushUnlinked(ctx, im.Store, acc, run, logger)
	res.Counts.FlushErrors = len(res.Flush.Errors)

	if res.Err != nil {
		_ = errLog.Close()
		if errLog.Lines() > 0 {
			res.ErrorLogPath = errLog.Path()
		}
		return res
	}

	res.enter(StateCleanup)
	if !im.KeepInput {
		if err := os.Remove(data.FilePath); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("remove input file")
		}
	}
	kept, err := errLog.Finalize()
	if err != nil {
		logger.WithError(err).Warn("finalize error log")
	}
	res.ErrorLogPath = kept
	if im.CleanupProgress {
		if err := im.Progress.Delete(ctx, jobID); err != nil {
			logger.WithError(err).Warn("delete job progress")
		}
	}
	if lastPercent != 100 {
		if err := job.UpdateProgress(ctx, 100); err != nil {
			logger.WithError(err).Warn("update job progress")
		}
	}

	res.enter(StateDone)
	logger.WithFields(logrus.Fields{
		"rows":               res.Processed,
		"linked":             res.Counts.Linked,
		"unlinked":           res.Counts.Unlinked,
		"dropped":            res.Counts.Dropped,
		"mapping_errors":     res.Counts.MappingErrors,
		"persistence_errors": res.Counts.PersistenceErrors,
		"flush_errors":       res.Counts.FlushErrors,
		"error_log":          res.ErrorLogPath,
	}).Info("report import finished")
	return res
}

func percent(index, total int) int {
	if total <= 0 {
		return 100
	}
	p := index * 100 / total
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
