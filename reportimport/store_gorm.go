package reportimport

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"gorm.io/gorm"
)

// GormReportStore is the MySQL ReportStore.
type GormReportStore struct {
	db *gorm.DB
}

func NewGormReportStore(db *gorm.DB) *GormReportStore {
	return &GormReportStore{db: db}
}

func (s *GormReportStore) FindLabelByName(ctx context.Context, name string) (*models.Label, error) {
	label, err := models.FindLabelByName(ctx, s.db, name)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, nil
	}
	return label, err
}

func (s *GormReportStore) CreateReportRow(ctx context.Context, rec Record, labelID int, meta RowMeta) error {
	db := s.db.WithContext(ctx)
	switch r := rec.(type) {
	case *KontorRecord:
		row := models.KontorReport{
			LabelId:        labelID,
			ImportJobId:    meta.JobID,
			RowIndex:       meta.RowIndex,
			ReportingMonth: meta.Month(rec),
			LabelName:      r.Label,
			Artist:         r.Artist,
			Title:          r.Title,
			Isrc:           r.ISRC,
			UpcEan:         r.UPCEAN,
			Shop:           r.Shop,
			Country:        r.Country,
			SalesType:      r.SalesType,
			MediaType:      r.MediaType,
			Period:         r.Period,
			Quantity:       r.Quantity,
			Price:          r.Price,
			RevenueGross:   r.RevenueGross,
			RevenueNet:     r.RevenueNet,
			Currency:       r.Currency,
			RoyaltyRate:    r.RoyaltyRate,
			RoyaltyAmount:  r.RoyaltyAmount,
			CatalogNo:      r.CatalogNo,
			TrackDuration:  r.TrackDuration,
			SalesMonth:     r.SalesMonth,
		}
		return db.Create(&row).Error
	case *BelieveRecord:
		row := models.BelieveReport{
			LabelId:          labelID,
			ImportJobId:      meta.JobID,
			RowIndex:         meta.RowIndex,
			ReportingMonth:   meta.Month(rec),
			LabelName:        r.Label,
			ArtistName:       r.ArtistName,
			ReleaseTitle:     r.ReleaseTitle,
			TrackTitle:       r.TrackTitle,
			Upc:              r.UPC,
			Isrc:             r.ISRC,
			Platform:         r.Platform,
			CountryRegion:    r.CountryRegion,
			SalesType:        r.SalesType,
			Quantity:         r.Quantity,
			ClientShareRate:  r.ClientShareRate,
			UnitPrice:        r.UnitPrice,
			GrossRevenue:     r.GrossRevenue,
			NetRevenue:       r.NetRevenue,
			MechanicalFee:    r.MechanicalFee,
			Currency:         r.Currency,
			SalesMonth:       r.SalesMonth,
			ReleaseCatalogNb: r.ReleaseCatalogNb,
		}
		return db.Create(&row).Error
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
}

func (s *GormReportStore) CreateUnlinkedReport(ctx context.Context, report *models.UnlinkedReport) error {
	return s.db.WithContext(ctx).Create(report).Error
}

func (s *GormReportStore) CreateUnlinkedReportDetail(ctx context.Context, detail *models.UnlinkedReportDetail) error {
	return s.db.WithContext(ctx).Create(detail).Error
}
