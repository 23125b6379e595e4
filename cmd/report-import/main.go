// report-import runs one royalty report import from the command line.
//
// Usage:
//
//	go run ./cmd/report-import -file kontor-2024-03.csv -distributor kontor -month 202403
//
// With -dry-run nothing is written: labels come from -labels and rows are only counted.
// Otherwise DB_* env vars select the database and progress is kept in redis (REDIS_ADDRESS)
// so a rerun with the same -job-id resumes after the last reconciled row.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/reportimport"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"
)

type cliJob struct {
	id     string
	data   reportimport.JobData
	logger logrus.FieldLogger
}

func (j *cliJob) ID() string                 { return j.id }
func (j *cliJob) Data() reportimport.JobData { return j.data }

func (j *cliJob) UpdateProgress(_ context.Context, percent int) error {
	j.logger.WithField("percent", percent).Debug("progress")
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	file := flag.String("file", "", "Required: report file (.csv, .txt or .xlsx)")
	distributor := flag.String("distributor", "", "Required: kontor or believe")
	month := flag.String("month", "", "Reporting month (YYYYMM); defaults to each row's sales month")
	jobID := flag.String("job-id", "", "Job id; reuse it to resume an interrupted import")
	dryRun := flag.Bool("dry-run", false, "Reconcile against -labels without touching the database")
	labels := flag.String("labels", "", "Dry run: comma separated known label names")
	keep := flag.Bool("keep", true, "Keep the input file after a successful import")
	memoryProgress := flag.Bool("memory-progress", false, "Do not persist progress in redis")
	errorLogDir := flag.String("error-log-dir", "", "Directory for the row error log (default: next to -file)")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		return 1
	}
	d, err := models.ParseDistributor(*distributor)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	reportingMonth := ""
	if strings.TrimSpace(*month) != "" {
		reportingMonth, err = reportimport.NormalizeMonth(*month)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -month %q\n", *month)
			return 1
		}
	}
	if *jobID == "" {
		*jobID = uuid.NewString()
	}

	lock := flock.New(*file + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lock %s: %v\n", lock.Path(), err)
		return 1
	}
	if !locked {
		fmt.Fprintf(os.Stderr, "another import of %s is running\n", *file)
		return 1
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := config.GetLogger()
	im := &reportimport.Importer{
		Logger:      logger,
		ErrorLogDir: *errorLogDir,
		KeepInput:   *keep,
	}

	var store *dryRunStore
	if *dryRun {
		store = newDryRunStore(*labels)
		im.Store = store
		im.Progress = reportimport.NewMemoryProgressStore()
		im.KeepInput = true
	} else {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
		im.Store = reportimport.NewGormReportStore(config.GetDB())
		if *memoryProgress {
			im.Progress = reportimport.NewMemoryProgressStore()
		} else {
			config.ConnectRedisWithRetry()
			im.Progress = reportimport.NewRedisProgressStore(config.GetRedisDB(), config.ReportImportProgressTTL())
			im.CleanupProgress = config.CleanupProgressOnSuccess()
		}
	}

	job := &cliJob{
		id:     *jobID,
		data:   reportimport.JobData{FilePath: *file, Distributor: d, ReportingMonth: reportingMonth},
		logger: logger.WithField("job_id", *jobID),
	}
	res := im.Run(ctx, job)

	fmt.Println(renderResult(res, store))
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", res.Err)
		return 1
	}
	return 0
}

func renderResult(res reportimport.Result, store *dryRunStore) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("report import " + res.JobID)
	tw.AppendHeader(table.Row{"Metric", "Value"})

	count := func(name string, n int) {
		tw.AppendRow(table.Row{name, strconv.Itoa(n)})
	}
	tw.AppendRow(table.Row{"Status", res.Status()})
	count("Total rows", res.TotalRows)
	count("Resumed from", res.ResumedFrom)
	count("Processed", res.Processed)
	count("Linked", res.Counts.Linked)
	count("Unlinked", res.Counts.Unlinked)
	count("Dropped", res.Counts.Dropped)
	count("Mapping errors", res.Counts.MappingErrors)
	count("Persistence errors", res.Counts.PersistenceErrors)
	count("Flush errors", res.Counts.FlushErrors)
	count("Unlinked reports", res.Flush.Reports)
	if store != nil {
		count("Rows written (dry run)", store.rows)
	}
	if res.ErrorLogPath != "" {
		tw.AppendRow(table.Row{"Error log", res.ErrorLogPath})
	}
	tw.AppendRow(table.Row{"Duration", res.Duration().Round(time.Millisecond).String()})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})
	return tw.Render()
}
