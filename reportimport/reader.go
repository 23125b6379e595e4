package reportimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Delimiter of distributor CSV exports.
const Delimiter = ';'

// Row is one data row of a report. Index is 1-based and counts every data row
// read so far, including rows that failed mapping.
type Row struct {
	Index  int
	Record Record
	Err    error
}

type rowSource interface {
	next() ([]string, error)
	close() error
}

// ReportReader streams the data rows of a distributor report.
type ReportReader struct {
	path        string
	distributor models.Distributor
	src         rowSource
	header      []string
	index       int
}

// OpenReport opens a .csv (semicolon separated) or .xlsx report and consumes its header row.
func OpenReport(path string, d models.Distributor) (*ReportReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}

	var (
		src rowSource
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		src, err = openXLSXSource(path)
	} else {
		src, err = openCSVSource(path)
	}
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}

	r := &ReportReader{path: path, distributor: d, src: src}
	for {
		cells, err := src.next()
		if errors.Is(err, io.EOF) {
			// no header: behaves as an empty report
			return r, nil
		}
		if err != nil {
			_ = src.close()
			return nil, &FileReadError{Path: path, Err: err}
		}
		if isBlank(cells) {
			continue
		}
		r.header = make([]string, len(cells))
		for i, c := range cells {
			r.header[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		}
		return r, nil
	}
}

// Header returns the trimmed header cells.
func (r *ReportReader) Header() []string {
	return r.header
}

// MissingColumns lists expected distributor columns absent from the header.
func (r *ReportReader) MissingColumns() []string {
	present := make(map[string]bool, len(r.header))
	for _, h := range r.header {
		present[strings.ToLower(h)] = true
	}
	var missing []string
	for _, c := range columnsByDistributor[r.distributor] {
		if !present[strings.ToLower(c)] {
			missing = append(missing, c)
		}
	}
	return missing
}

// Next maps the next data row. A row that fails mapping is returned with Err set;
// io.EOF ends the report and any other error is a *FileReadError.
func (r *ReportReader) Next() (Row, error) {
	cells, err := r.nextCells()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return Row{Index: r.index, Err: fmt.Errorf("malformed line %d: %w", parseErr.Line, parseErr.Err)}, nil
		}
		return Row{}, err
	}

	rec, err := MapRow(r.raw(cells), r.distributor)
	return Row{Index: r.index, Record: rec, Err: err}, nil
}

// Skip advances past up to k data rows without mapping them and reports how many were skipped.
func (r *ReportReader) Skip(k int) (int, error) {
	skipped := 0
	for skipped < k {
		_, err := r.nextCells()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

func (r *ReportReader) Close() error {
	return r.src.close()
}

// nextCells returns the cells of the next non-blank data row and advances the index.
func (r *ReportReader) nextCells() ([]string, error) {
	if r.header == nil {
		return nil, io.EOF
	}
	for {
		cells, err := r.src.next()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.index++
				return nil, err
			}
			return nil, &FileReadError{Path: r.path, Err: err}
		}
		if isBlank(cells) {
			continue
		}
		r.index++
		return cells, nil
	}
}

func (r *ReportReader) raw(cells []string) RawRow {
	raw := make(RawRow, len(r.header))
	for i, h := range r.header {
		if h == "" {
			continue
		}
		if i < len(cells) {
			raw[h] = strings.TrimSpace(cells[i])
		} else {
			raw[h] = ""
		}
	}
	return raw
}

// CountRows returns the number of data rows in a report.
func CountRows(path string, d models.Distributor) (int, error) {
	r, err := OpenReport(path, d)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.Skip(math.MaxInt)
}

// ReadAll maps a whole report into memory. Rows that fail mapping are logged and skipped.
func ReadAll(path string, d models.Distributor, logger logrus.FieldLogger) ([]Record, error) {
	r, err := OpenReport(path, d)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []Record
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		if row.Err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{"row": row.Index, "path": path}).Warn(row.Err.Error())
			}
			continue
		}
		records = append(records, row.Record)
	}
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type csvSource struct {
	f *os.File
	r *csv.Reader
}

func openCSVSource(path string) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// strips a UTF-8 BOM and decodes UTF-16 exports that carry one
	decoded := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	r := csv.NewReader(decoded)
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true
	return &csvSource{f: f, r: r}, nil
}

func (s *csvSource) next() ([]string, error) {
	return s.r.Read()
}

func (s *csvSource) close() error {
	return s.f.Close()
}

type xlsxSource struct {
	f    *excelize.File
	rows *excelize.Rows
}

func openXLSXSource(path string) (*xlsxSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &xlsxSource{f: f, rows: rows}, nil
}

func (s *xlsxSource) next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

func (s *xlsxSource) close() error {
	_ = s.rows.Close()
	return s.f.Close()
}
