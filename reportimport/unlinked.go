package reportimport

import (
	"context"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

type FlushResult struct {
	Reports int
	Details int
	Errors  []*UnlinkedFlushError
}

// FlushUnlinked writes one UnlinkedReport per accumulated label name and month, and one detail per row.
// A failed report skips only its own details, a failed detail skips only itself.
// Reports are never merged with those of earlier runs.
func FlushUnlinked(ctx context.Context, store ReportStore, acc *UnlinkedAccumulator, run RunMeta, logger logrus.FieldLogger) FlushResult {
	ctx, span := tracer.Start(ctx, "reportimport.FlushUnlinked")
	defer span.End()

	var res FlushResult
	fail := func(labelName string, rowIndex int, err error) {
		fe := &UnlinkedFlushError{LabelName: labelName, RowIndex: rowIndex, Err: err}
		res.Errors = append(res.Errors, fe)
		if logger != nil {
			logger.WithFields(logrus.Fields{"label_name": labelName, "row": rowIndex}).Error(fe.Error())
		}
	}

	for _, bucket := range acc.Buckets() {
		report := &models.UnlinkedReport{
			LabelName:      bucket.LabelName,
			Distributor:    run.Distributor,
			ReportingMonth: bucket.ReportingMonth,
			ImportJobId:    run.JobID,
			Count:          len(bucket.Entries),
			Status:         models.UnlinkedStatusPending,
		}
		if err := store.CreateUnlinkedReport(ctx, report); err != nil {
			fail(bucket.LabelName, 0, err)
			continue
		}
		res.Reports++

		for _, entry := range bucket.Entries {
			data, err := utils.MarshalToJSON(entry.Record.Fields())
			if err != nil {
				fail(bucket.LabelName, entry.RowIndex, err)
				continue
			}
			detail := &models.UnlinkedReportDetail{
				UnlinkedReportId: report.ID,
				RowIndex:         entry.RowIndex,
				Data:             datatypes.JSON(data),
			}
			if err := store.CreateUnlinkedReportDetail(ctx, detail); err != nil {
				fail(bucket.LabelName, entry.RowIndex, err)
				continue
			}
			res.Details++
		}
	}

	span.SetAttributes(
		attribute.Int("unlinked.reports", res.Reports),
		attribute.Int("unlinked.details", res.Details),
		attribute.Int("unlinked.errors", len(res.Errors)),
	)
	return res
}
