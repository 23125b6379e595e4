package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type KontorReport struct {
	ID             int             `gorm:"primary_key" json:"id"`
	LabelId        int             `gorm:"index;not null" json:"label_id"`
	ImportJobId    string          `gorm:"size:36;index" json:"import_job_id"`
	RowIndex       int             `json:"row_index"`
	ReportingMonth string          `gorm:"size:6;index" json:"reporting_month"`
	LabelName      string          `gorm:"size:255" json:"label_name"`
	Artist         string          `gorm:"size:255" json:"artist"`
	Title          string          `gorm:"size:255" json:"title"`
	Isrc           string          `gorm:"size:20" json:"isrc"`
	UpcEan         string          `gorm:"size:20" json:"upc_ean"`
	Shop           string          `gorm:"size:100" json:"shop"`
	Country        string          `gorm:"size:50" json:"country"`
	SalesType      string          `gorm:"size:50" json:"sales_type"`
	MediaType      string          `gorm:"size:50" json:"media_type"`
	Period         string          `gorm:"size:20" json:"period"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"price"`
	RevenueGross   decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"revenue_gross"`
	RevenueNet     decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"revenue_net"`
	Currency       string          `gorm:"size:3" json:"currency"`
	RoyaltyRate    decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"royalty_rate"`
	RoyaltyAmount  decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"royalty_amount"`
	CatalogNo      string          `gorm:"size:100" json:"catalog_no"`
	TrackDuration  string          `gorm:"size:20" json:"track_duration"`
	SalesMonth     string          `gorm:"size:6" json:"sales_month"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type BelieveReport struct {
	ID               int             `gorm:"primary_key" json:"id"`
	LabelId          int             `gorm:"index;not null" json:"label_id"`
	ImportJobId      string          `gorm:"size:36;index" json:"import_job_id"`
	RowIndex         int             `json:"row_index"`
	ReportingMonth   string          `gorm:"size:6;index" json:"reporting_month"`
	LabelName        string          `gorm:"size:255" json:"label_name"`
	ArtistName       string          `gorm:"size:255" json:"artist_name"`
	ReleaseTitle     string          `gorm:"size:255" json:"release_title"`
	TrackTitle       string          `gorm:"size:255" json:"track_title"`
	Upc              string          `gorm:"size:20" json:"upc"`
	Isrc             string          `gorm:"size:20" json:"isrc"`
	Platform         string          `gorm:"size:100" json:"platform"`
	CountryRegion    string          `gorm:"size:50" json:"country_region"`
	SalesType        string          `gorm:"size:50" json:"sales_type"`
	Quantity         int             `json:"quantity"`
	ClientShareRate  decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"client_share_rate"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"unit_price"`
	GrossRevenue     decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"gross_revenue"`
	NetRevenue       decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"net_revenue"`
	MechanicalFee    decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"mechanical_fee"`
	Currency         string          `gorm:"size:3" json:"currency"`
	SalesMonth       string          `gorm:"size:6" json:"sales_month"`
	ReleaseCatalogNb string          `gorm:"size:100" json:"release_catalog_nb"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
