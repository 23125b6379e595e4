package reportimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type ImportJobPayload struct {
	JobId         string `json:"job_id"`
	CorrelationId string `json:"correlation_id,omitempty"`
}

func topicName() string {
	return utils.StringFromEnv("REPORT_IMPORT_TOPIC", "report-import")
}

// PublishImportJob queues a job row for a worker.
func PublishImportJob(ctx context.Context, jobID string) error {
	topic := topicName()
	if utils.EnvBoolDefault("REPORT_IMPORT_CREATE_TOPIC", false) {
		client, err := config.GetClient(ctx)
		if err != nil {
			return err
		}
		if _, err := config.CreateTopicIfNotExists(ctx, client, topic); err != nil {
			return err
		}
	}

	payload := ImportJobPayload{JobId: jobID}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		payload.CorrelationId = correlationId
	}
	_, err := config.PublishJSON(ctx, topic, payload)
	return err
}

// processJob is swapped in tests.
var processJob = ProcessImportJob

// PubSubPushHandler acknowledges every push except those whose job asked for a
// redelivery; Pub/Sub retries a non-2xx push with backoff. Outcomes are recorded
// on the job row.
func PubSubPushHandler(im *Importer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.EnvBoolDefault("ENABLE_REPORT_IMPORT_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := utils.UnmarshalFromJSON(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		payload, err := decodePayload(envelope.Message.Data)
		if err != nil {
			im.logger().WithField("message_id", envelope.Message.ID).Warn(err.Error())
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if payload.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, payload.CorrelationId)
		}
		if err := processJob(ctx, im, payload.JobId); err != nil {
			if errors.Is(err, ErrRetryDelivery) {
				im.logger().WithField("job_id", payload.JobId).WithError(err).Warn("import job redelivery requested")
				c.Status(http.StatusServiceUnavailable)
				return
			}
			config.LogError(config.GetLogger(), "reportimport", "PubSubPushHandler", "process import job", payload, err)
		}
		c.Status(204)
	}
}

// RunSubscriber pulls jobs until ctx is done, one at a time. Messages are acked
// unless the job asked for a redelivery.
func RunSubscriber(ctx context.Context, im *Importer, subscriptionName string) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, topicName())
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, subscriptionName, topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		payload, err := decodePayload(m.Data)
		if err != nil {
			im.logger().WithField("message_id", m.ID).Warn(err.Error())
			m.Ack()
			return
		}
		if payload.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, payload.CorrelationId)
		}
		err = processJob(ctx, im, payload.JobId)
		if errors.Is(err, ErrRetryDelivery) {
			im.logger().WithField("job_id", payload.JobId).WithError(err).Warn("import job redelivery requested")
			m.Nack()
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "reportimport", "RunSubscriber", "process import job", payload, err)
		}
		m.Ack()
	})
}

func decodePayload(data []byte) (ImportJobPayload, error) {
	var payload ImportJobPayload
	if err := utils.UnmarshalFromJSON(data, &payload); err != nil {
		return payload, err
	}
	if strings.TrimSpace(payload.JobId) == "" {
		return payload, errors.New("import payload without job_id")
	}
	return payload, nil
}

// Swapped in tests.
var (
	loadJob     = models.GetReportImportJob
	markRunning = models.MarkReportImportJobRunning
	updateJob   = models.UpdateReportImportJob
	fetchReport = materialize
	deleteObj   = utils.DeleteObjectFromGCS
)

func maxAttempts() int {
	return utils.IntFromEnv("REPORT_IMPORT_MAX_ATTEMPTS", 5)
}

func retryDelivery(err error) error {
	return fmt.Errorf("%w: %w", ErrRetryDelivery, err)
}

// ProcessImportJob loads the job row, runs the import and records the outcome.
// Redelivered messages for finished jobs are ignored. An error wrapping
// ErrRetryDelivery asks the transport to redeliver the message.
func ProcessImportJob(ctx context.Context, im *Importer, jobID string) error {
	row, err := loadJob(ctx, jobID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return err
	}
	if err != nil {
		return retryDelivery(err)
	}
	if row.IsFinished() {
		return nil
	}

	logger := im.logger().WithField("job_id", row.ID)
	startedAt := time.Now()
	if row.StartedAt != nil {
		startedAt = *row.StartedAt
	}

	path, err := fetchReport(ctx, row)
	if err != nil {
		res := Result{JobID: row.ID, Err: &FileReadError{Path: row.ObjectKey, Err: err}, Retryable: true}
		return recordOutcome(ctx, row, res, startedAt, logger)
	}

	running, err := markRunning(ctx, row.ID, startedAt)
	if err != nil {
		return retryDelivery(err)
	}
	if !running {
		return nil
	}

	res := im.Run(ctx, &dbJob{row: row, filePath: path})

	if res.Err == nil && row.ObjectKey != "" {
		if err := deleteObj(ctx, row.ObjectKey); err != nil {
			logger.WithError(err).Warn("delete report object")
		}
	}
	return recordOutcome(ctx, row, res, startedAt, logger)
}

func recordOutcome(ctx context.Context, row *models.ReportImportJob, res Result, startedAt time.Time, logger logrus.FieldLogger) error {
	if errors.Is(res.Err, ErrJobLocked) {
		// another delivery owns the job and records its outcome; a crashed
		// owner's lock expires and the redelivery resumes from its cursor
		logger.Info("import job held by another run, redelivery requested")
		return retryDelivery(res.Err)
	}

	updates, retry := outcomeUpdates(row, res, startedAt, time.Now(), maxAttempts())
	if err := updateJob(ctx, row.ID, updates); err != nil {
		return retryDelivery(err)
	}
	logger.WithFields(logrus.Fields{"status": updates["status"], "attempts": updates["attempts"]}).Info("import job recorded")
	if retry {
		return retryDelivery(res.Err)
	}
	return nil
}

// outcomeUpdates maps a run onto the job row. Retryable failures keep the job
// resumable until maxAttempts runs have failed, then it is recorded as failed.
func outcomeUpdates(row *models.ReportImportJob, res Result, startedAt, now time.Time, maxAttempts int) (map[string]interface{}, bool) {
	updates := map[string]interface{}{
		"linked_count":   row.LinkedCount + res.Counts.Linked,
		"unlinked_count": row.UnlinkedCount + res.Counts.Unlinked,
		"dropped_count":  row.DroppedCount + res.Counts.Dropped,
		"error_count":    row.ErrorCount + res.Counts.Errors(),
	}
	if res.TotalRows > 0 || res.Processed > 0 {
		updates["total_rows"] = res.TotalRows
		updates["processed_rows"] = res.ResumedFrom + res.Processed
	}
	if res.ErrorLogPath != "" {
		updates["error_log_path"] = res.ErrorLogPath
	}

	retry := res.Err != nil && res.Retryable
	status := res.Status()
	switch {
	case res.Err == nil:
		updates["progress"] = 100
		updates["last_error"] = ""
	case retry:
		attempts := row.Attempts + 1
		updates["attempts"] = attempts
		updates["last_error"] = res.Err.Error()
		if attempts >= maxAttempts {
			retry = false
			status = models.ImportStatusFailed
		}
	default:
		updates["last_error"] = res.Err.Error()
	}
	updates["status"] = status

	if !retry {
		updates["finished_at"] = now
		updates["duration_ms"] = now.Sub(startedAt).Milliseconds()
	}
	return updates, retry
}

// materialize returns a local path for the job's report. A GCS object that no longer
// exists yields a path that does not exist, so the importer abandons the job.
func materialize(ctx context.Context, row *models.ReportImportJob) (string, error) {
	if row.ObjectKey == "" {
		return row.FilePath, nil
	}
	dest := filepath.Join(config.ReportImportUploadDir(), "jobs", row.ID+filepath.Ext(row.ObjectKey))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if _, err := utils.DownloadGCSObjectToFile(ctx, row.ObjectKey, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// dbJob adapts a ReportImportJob row to Job.
type dbJob struct {
	row      *models.ReportImportJob
	filePath string
}

func (j *dbJob) ID() string { return j.row.ID }

func (j *dbJob) Data() JobData {
	return JobData{
		FilePath:       j.filePath,
		Distributor:    j.row.Distributor,
		ReportingMonth: j.row.ReportingMonth,
	}
}

func (j *dbJob) UpdateProgress(ctx context.Context, percent int) error {
	return updateJob(ctx, j.row.ID, map[string]interface{}{"progress": percent})
}
