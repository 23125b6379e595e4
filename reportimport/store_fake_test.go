package reportimport

import (
	"context"
	"errors"
	"sync"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
)

type storedRow struct {
	Record  Record
	LabelID int
	Meta    RowMeta
}

// fakeStore is an in-memory ReportStore with per-name and per-row failure injection.
type fakeStore struct {
	mu sync.Mutex

	labels    map[string]*models.Label
	findErr   map[string]error
	rowErr    map[string]error
	reportErr map[string]error
	detailErr map[int]error

	rows     []storedRow
	reports  []*models.UnlinkedReport
	details  []*models.UnlinkedReportDetail
	nextID   int
	findCall int
}

func newFakeStore(labels ...string) *fakeStore {
	s := &fakeStore{
		labels:    map[string]*models.Label{},
		findErr:   map[string]error{},
		rowErr:    map[string]error{},
		reportErr: map[string]error{},
		detailErr: map[int]error{},
	}
	for _, name := range labels {
		s.nextID++
		s.labels[name] = &models.Label{ID: s.nextID, Name: name}
	}
	return s
}

func (s *fakeStore) FindLabelByName(_ context.Context, name string) (*models.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCall++
	if err := s.findErr[name]; err != nil {
		return nil, err
	}
	return s.labels[name], nil
}

func (s *fakeStore) CreateReportRow(_ context.Context, rec Record, labelID int, meta RowMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rowErr[rec.LabelName()]; err != nil {
		return err
	}
	s.rows = append(s.rows, storedRow{Record: rec, LabelID: labelID, Meta: meta})
	return nil
}

func (s *fakeStore) CreateUnlinkedReport(_ context.Context, report *models.UnlinkedReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reportErr[report.LabelName]; err != nil {
		return err
	}
	s.nextID++
	report.ID = s.nextID
	s.reports = append(s.reports, report)
	return nil
}

func (s *fakeStore) CreateUnlinkedReportDetail(_ context.Context, detail *models.UnlinkedReportDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.detailErr[detail.RowIndex]; err != nil {
		return err
	}
	if detail.UnlinkedReportId == 0 {
		return errors.New("detail without report")
	}
	s.nextID++
	detail.ID = s.nextID
	s.details = append(s.details, detail)
	return nil
}

func (s *fakeStore) detailsFor(reportID int) []*models.UnlinkedReportDetail {
	var out []*models.UnlinkedReportDetail
	for _, d := range s.details {
		if d.UnlinkedReportId == reportID {
			out = append(out, d)
		}
	}
	return out
}

// countingProgress records mutations of the wrapped store.
type countingProgress struct {
	ProgressStore
	sets    int
	deletes int
}

func (p *countingProgress) Set(ctx context.Context, jobID string, index int) error {
	p.sets++
	return p.ProgressStore.Set(ctx, jobID, index)
}

func (p *countingProgress) Delete(ctx context.Context, jobID string) error {
	p.deletes++
	return p.ProgressStore.Delete(ctx, jobID)
}

type fakeJob struct {
	id       string
	data     JobData
	percents []int
}

func (j *fakeJob) ID() string    { return j.id }
func (j *fakeJob) Data() JobData { return j.data }

func (j *fakeJob) UpdateProgress(_ context.Context, percent int) error {
	j.percents = append(j.percents, percent)
	return nil
}
