package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"gorm.io/gorm"
)

// Queued, running and retrying jobs are picked up again on redelivery;
// retrying means a transient failure left the job resumable.
const (
	ImportStatusQueued   = "queued"
	ImportStatusRunning  = "running"
	ImportStatusRetrying = "retrying"
	ImportStatusSuccess  = "success"
	ImportStatusPartial  = "partial"
	ImportStatusFailed   = "failed"
)

type ReportImportJob struct {
	ID             string      `gorm:"primary_key;size:36" json:"id"`
	Distributor    Distributor `gorm:"size:20;not null;index:idx_import_period,priority:1" json:"distributor"`
	ReportingMonth string      `gorm:"size:6;index:idx_import_period,priority:2" json:"reporting_month"`
	FilePath       string      `gorm:"size:1024" json:"file_path"`
	ObjectKey      string      `gorm:"size:1024" json:"object_key"`
	Status         string      `gorm:"size:20;not null" json:"status"`
	Progress       int         `gorm:"not null;default:0" json:"progress"`
	TotalRows      int         `json:"total_rows"`
	ProcessedRows  int         `json:"processed_rows"`
	LinkedCount    int         `json:"linked_count"`
	UnlinkedCount  int         `json:"unlinked_count"`
	DroppedCount   int         `json:"dropped_count"`
	ErrorCount     int         `json:"error_count"`
	ErrorLogPath   string      `gorm:"size:1024" json:"error_log_path"`
	Attempts       int         `gorm:"not null;default:0" json:"attempts"`
	LastError      string      `gorm:"type:text" json:"last_error"`
	StartedAt      *time.Time  `json:"started_at"`
	FinishedAt     *time.Time  `json:"finished_at"`
	DurationMs     int64       `json:"duration_ms"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFinished reports whether a redelivered job message should be ignored.
func (j *ReportImportJob) IsFinished() bool {
	switch j.Status {
	case ImportStatusSuccess, ImportStatusPartial, ImportStatusFailed:
		return true
	}
	return false
}

func CreateReportImportJob(ctx context.Context, job *ReportImportJob) error {
	if job.Status == "" {
		job.Status = ImportStatusQueued
	}
	return config.GetDB().WithContext(ctx).Create(job).Error
}

func GetReportImportJob(ctx context.Context, id string) (*ReportImportJob, error) {
	var job ReportImportJob
	err := config.GetDB().WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func UpdateReportImportJob(ctx context.Context, id string, updates map[string]interface{}) error {
	return config.GetDB().WithContext(ctx).
		Model(&ReportImportJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkReportImportJobRunning moves an unfinished job to running. It reports false,
// without error, when the job finished in the meantime.
func MarkReportImportJobRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	tx := config.GetDB().WithContext(ctx).
		Model(&ReportImportJob{}).
		Where("id = ? AND status IN ?", id, []string{ImportStatusQueued, ImportStatusRunning, ImportStatusRetrying}).
		Updates(map[string]interface{}{"status": ImportStatusRunning, "started_at": startedAt})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
