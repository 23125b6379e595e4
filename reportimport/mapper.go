package reportimport

import (
	"fmt"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"github.com/shopspring/decimal"
)

// RawRow maps a header cell to the row's cell in that column.
type RawRow map[string]string

// Record is a mapped report row. It is implemented by *KontorRecord and *BelieveRecord.
type Record interface {
	Distributor() models.Distributor
	LabelName() string
	// Month is the period the row itself reports, YYYYMM or empty.
	Month() string
	// Fields returns the normalized values keyed by field name, for opaque storage.
	Fields() map[string]any
}

// Kontor export headers.
const (
	kontorLabel         = "Label"
	kontorArtist        = "Artist"
	kontorTitle         = "Title"
	kontorISRC          = "ISRC"
	kontorUPC           = "UPC/EAN"
	kontorShop          = "Shop"
	kontorCountry       = "Country"
	kontorSalesType     = "Sales Type"
	kontorMediaType     = "Media Type"
	kontorPeriod        = "Period"
	kontorQuantity      = "Quantity"
	kontorPrice         = "Price"
	kontorRevenueGross  = "Revenue Gross"
	kontorRevenueNet    = "Revenue Net"
	kontorCurrency      = "Currency"
	kontorRoyaltyRate   = "Royalty Rate"
	kontorRoyaltyAmount = "Royalty Amount"
	kontorCatalogNo     = "Catalog No"
	kontorTrackDuration = "Track Duration"
	kontorSalesMonth    = "Sales Month"
)

// Believe export headers.
const (
	believeLabel           = "Label Name"
	believeArtist          = "Artist Name"
	believeReleaseTitle    = "Release Title"
	believeTrackTitle      = "Track Title"
	believeUPC             = "UPC"
	believeISRC            = "ISRC"
	believePlatform        = "Platform"
	believeCountry         = "Country / Region"
	believeSalesType       = "Sales Type"
	believeQuantity        = "Quantity"
	believeClientShareRate = "Client Share Rate"
	believeUnitPrice       = "Unit Price"
	believeGrossRevenue    = "Gross Revenue"
	believeNetRevenue      = "Net Revenue"
	believeMechanicalFee   = "Mechanical Fee"
	believeCurrency        = "Currency"
	believeSalesMonth      = "Sales Month"
	believeReportingMonth  = "Reporting Month"
	believeCatalogNb       = "Release Catalog nb"
)

var columnsByDistributor = map[models.Distributor][]string{
	models.DistributorKontor: {
		kontorLabel, kontorArtist, kontorTitle, kontorISRC, kontorUPC, kontorShop, kontorCountry,
		kontorSalesType, kontorMediaType, kontorPeriod, kontorQuantity, kontorPrice, kontorRevenueGross,
		kontorRevenueNet, kontorCurrency, kontorRoyaltyRate, kontorRoyaltyAmount, kontorCatalogNo,
		kontorTrackDuration, kontorSalesMonth,
	},
	models.DistributorBelieve: {
		believeLabel, believeArtist, believeReleaseTitle, believeTrackTitle, believeUPC, believeISRC,
		believePlatform, believeCountry, believeSalesType, believeQuantity, believeClientShareRate,
		believeUnitPrice, believeGrossRevenue, believeNetRevenue, believeMechanicalFee, believeCurrency,
		believeSalesMonth, believeReportingMonth, believeCatalogNb,
	},
}

// Columns lists the headers a distributor export is expected to carry, in export order.
func Columns(d models.Distributor) []string {
	return append([]string(nil), columnsByDistributor[d]...)
}

type KontorRecord struct {
	Label         string
	Artist        string
	Title         string
	ISRC          string
	UPCEAN        string
	Shop          string
	Country       string
	SalesType     string
	MediaType     string
	Period        string
	Quantity      int
	Price         decimal.Decimal
	RevenueGross  decimal.Decimal
	RevenueNet    decimal.Decimal
	Currency      string
	RoyaltyRate   decimal.Decimal
	RoyaltyAmount decimal.Decimal
	CatalogNo     string
	TrackDuration string
	SalesMonth    string
}

func (r *KontorRecord) Distributor() models.Distributor { return models.DistributorKontor }
func (r *KontorRecord) LabelName() string               { return r.Label }
func (r *KontorRecord) Month() string                   { return r.SalesMonth }

func (r *KontorRecord) Fields() map[string]any {
	return map[string]any{
		"label":          r.Label,
		"artist":         r.Artist,
		"title":          r.Title,
		"isrc":           r.ISRC,
		"upc_ean":        r.UPCEAN,
		"shop":           r.Shop,
		"country":        r.Country,
		"sales_type":     r.SalesType,
		"media_type":     r.MediaType,
		"period":         r.Period,
		"quantity":       r.Quantity,
		"price":          r.Price.String(),
		"revenue_gross":  r.RevenueGross.String(),
		"revenue_net":    r.RevenueNet.String(),
		"currency":       r.Currency,
		"royalty_rate":   r.RoyaltyRate.String(),
		"royalty_amount": r.RoyaltyAmount.String(),
		"catalog_no":     r.CatalogNo,
		"track_duration": r.TrackDuration,
		"sales_month":    r.SalesMonth,
	}
}

type BelieveRecord struct {
	Label            string
	ArtistName       string
	ReleaseTitle     string
	TrackTitle       string
	UPC              string
	ISRC             string
	Platform         string
	CountryRegion    string
	SalesType        string
	Quantity         int
	ClientShareRate  decimal.Decimal
	UnitPrice        decimal.Decimal
	GrossRevenue     decimal.Decimal
	NetRevenue       decimal.Decimal
	MechanicalFee    decimal.Decimal
	Currency         string
	SalesMonth       string
	ReportingMonth   string
	ReleaseCatalogNb string
}

func (r *BelieveRecord) Distributor() models.Distributor { return models.DistributorBelieve }
func (r *BelieveRecord) LabelName() string               { return r.Label }

func (r *BelieveRecord) Month() string {
	if r.ReportingMonth != "" {
		return r.ReportingMonth
	}
	return r.SalesMonth
}

func (r *BelieveRecord) Fields() map[string]any {
	return map[string]any{
		"label_name":         r.Label,
		"artist_name":        r.ArtistName,
		"release_title":      r.ReleaseTitle,
		"track_title":        r.TrackTitle,
		"upc":                r.UPC,
		"isrc":               r.ISRC,
		"platform":           r.Platform,
		"country_region":     r.CountryRegion,
		"sales_type":         r.SalesType,
		"quantity":           r.Quantity,
		"client_share_rate":  r.ClientShareRate.String(),
		"unit_price":         r.UnitPrice.String(),
		"gross_revenue":      r.GrossRevenue.String(),
		"net_revenue":        r.NetRevenue.String(),
		"mechanical_fee":     r.MechanicalFee.String(),
		"currency":           r.Currency,
		"sales_month":        r.SalesMonth,
		"reporting_month":    r.ReportingMonth,
		"release_catalog_nb": r.ReleaseCatalogNb,
	}
}

// MapRow converts one raw row into the distributor's record.
// A missing required column or an unparseable number yields a *RowMappingError.
func MapRow(raw RawRow, d models.Distributor) (Record, error) {
	switch d {
	case models.DistributorKontor:
		return mapKontor(raw)
	case models.DistributorBelieve:
		return mapBelieve(raw)
	default:
		return nil, fmt.Errorf("unknown distributor %q", string(d))
	}
}

func mapKontor(raw RawRow) (*KontorRecord, error) {
	p := rowParser{raw: raw}
	rec := &KontorRecord{
		Label:         p.str(kontorLabel),
		Artist:        p.str(kontorArtist),
		Title:         p.str(kontorTitle),
		ISRC:          p.str(kontorISRC),
		UPCEAN:        p.str(kontorUPC),
		Shop:          p.str(kontorShop),
		Country:       p.str(kontorCountry),
		SalesType:     p.str(kontorSalesType),
		MediaType:     p.str(kontorMediaType),
		Period:        p.str(kontorPeriod),
		Quantity:      p.integer(kontorQuantity, true),
		Price:         p.dec(kontorPrice, false),
		RevenueGross:  p.dec(kontorRevenueGross, false),
		RevenueNet:    p.dec(kontorRevenueNet, true),
		Currency:      strings.ToUpper(p.str(kontorCurrency)),
		RoyaltyRate:   p.dec(kontorRoyaltyRate, false),
		RoyaltyAmount: p.dec(kontorRoyaltyAmount, true),
		CatalogNo:     p.str(kontorCatalogNo),
		TrackDuration: p.str(kontorTrackDuration),
		SalesMonth:    p.month(kontorSalesMonth),
	}
	if p.err != nil {
		return nil, p.err
	}
	return rec, nil
}

func mapBelieve(raw RawRow) (*BelieveRecord, error) {
	p := rowParser{raw: raw}
	rec := &BelieveRecord{
		Label:            p.str(believeLabel),
		ArtistName:       p.str(believeArtist),
		ReleaseTitle:     p.str(believeReleaseTitle),
		TrackTitle:       p.str(believeTrackTitle),
		UPC:              p.str(believeUPC),
		ISRC:             p.str(believeISRC),
		Platform:         p.str(believePlatform),
		CountryRegion:    p.str(believeCountry),
		SalesType:        p.str(believeSalesType),
		Quantity:         p.integer(believeQuantity, true),
		ClientShareRate:  p.dec(believeClientShareRate, false),
		UnitPrice:        p.dec(believeUnitPrice, false),
		GrossRevenue:     p.dec(believeGrossRevenue, false),
		NetRevenue:       p.dec(believeNetRevenue, true),
		MechanicalFee:    p.dec(believeMechanicalFee, false),
		Currency:         strings.ToUpper(p.str(believeCurrency)),
		SalesMonth:       p.month(believeSalesMonth),
		ReportingMonth:   p.month(believeReportingMonth),
		ReleaseCatalogNb: p.str(believeCatalogNb),
	}
	if p.err != nil {
		return nil, p.err
	}
	return rec, nil
}

// rowParser keeps the first field error so a mapping reads as one struct literal.
type rowParser struct {
	raw RawRow
	err error
}

func (p *rowParser) lookup(header string) string {
	if v, ok := p.raw[header]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range p.raw {
		if strings.EqualFold(strings.TrimSpace(k), header) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (p *rowParser) fail(field, value string, err error) {
	if p.err == nil {
		p.err = &RowMappingError{Field: field, Value: value, Err: err}
	}
}

func (p *rowParser) str(header string) string {
	return p.lookup(header)
}

func (p *rowParser) dec(header string, required bool) decimal.Decimal {
	v := p.lookup(header)
	if v == "" {
		if required {
			p.fail(header, v, errMissingField)
		}
		return decimal.Zero
	}
	d, err := ParseLocaleDecimal(v)
	if err != nil {
		p.fail(header, v, err)
		return decimal.Zero
	}
	return d
}

func (p *rowParser) integer(header string, required bool) int {
	v := p.lookup(header)
	if v == "" {
		if required {
			p.fail(header, v, errMissingField)
		}
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	// some exports write counts as "3,00"
	d, err := ParseLocaleDecimal(v)
	if err != nil {
		p.fail(header, v, err)
		return 0
	}
	if !d.IsInteger() {
		p.fail(header, v, fmt.Errorf("not a whole number"))
		return 0
	}
	return int(d.IntPart())
}

func (p *rowParser) month(header string) string {
	v := p.lookup(header)
	if v == "" {
		return ""
	}
	m, err := NormalizeMonth(v)
	if err != nil {
		p.fail(header, v, err)
		return ""
	}
	return m
}
