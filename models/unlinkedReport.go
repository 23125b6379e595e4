package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"gorm.io/datatypes"
)

// UnlinkedStatusPending is the status of every report an import writes.
const UnlinkedStatusPending = "pending"

// UnlinkedReport groups the rows of one import run whose label name matched no Label.
type UnlinkedReport struct {
	ID             int         `gorm:"primary_key" json:"id"`
	LabelName      string      `gorm:"size:255;index;not null" json:"label_name"`
	Distributor    Distributor `gorm:"size:20;not null" json:"distributor"`
	ReportingMonth string      `gorm:"size:6;index" json:"reporting_month"`
	ImportJobId    string      `gorm:"size:36;index" json:"import_job_id"`
	Count          int         `gorm:"not null;default:0" json:"count"`
	Status         string      `gorm:"size:20;not null;default:pending" json:"status"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type UnlinkedReportDetail struct {
	ID               int            `gorm:"primary_key" json:"id"`
	UnlinkedReportId int            `gorm:"index;not null" json:"unlinked_report_id"`
	RowIndex         int            `json:"row_index"`
	Data             datatypes.JSON `json:"data"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

type UnlinkedReportFilter struct {
	Status         string
	Distributor    Distributor
	ReportingMonth string
	LabelName      string
}

// ListUnlinkedReports pages newest first. after is a cursor from a previous page.
func ListUnlinkedReports(ctx context.Context, filter UnlinkedReportFilter, after string, limit int) ([]UnlinkedReport, PageInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	db := config.GetDB().WithContext(ctx).Model(&UnlinkedReport{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Distributor != "" {
		db = db.Where("distributor = ?", filter.Distributor)
	}
	if filter.ReportingMonth != "" {
		db = db.Where("reporting_month = ?", filter.ReportingMonth)
	}
	if filter.LabelName != "" {
		db = db.Where("label_name = ?", filter.LabelName)
	}
	if createdAt, id, ok := DecodeCompositeCursor(after); ok {
		db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	var reports []UnlinkedReport
	if err := db.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&reports).Error; err != nil {
		return nil, PageInfo{}, err
	}
	var page PageInfo
	if len(reports) > limit {
		page.HasNextPage = true
		reports = reports[:limit]
	}
	if n := len(reports); n > 0 {
		page.EndCursor = EncodeCompositeCursor(reports[n-1].CreatedAt, reports[n-1].ID)
	}
	return reports, page, nil
}

func GetUnlinkedReportDetails(ctx context.Context, reportID int) ([]UnlinkedReportDetail, error) {
	var details []UnlinkedReportDetail
	err := config.GetDB().WithContext(ctx).
		Where("unlinked_report_id = ?", reportID).
		Order("row_index").
		Find(&details).Error
	return details, err
}
