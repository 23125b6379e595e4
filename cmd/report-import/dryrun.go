package main

import (
	"context"
	"strings"
	"sync"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/reportimport"
)

// dryRunStore links against a fixed label list and discards every write.
type dryRunStore struct {
	mu     sync.Mutex
	labels map[string]int
	rows   int
	nextID int
}

func newDryRunStore(names string) *dryRunStore {
	s := &dryRunStore{labels: map[string]int{}}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := s.labels[name]; !ok {
			s.labels[name] = len(s.labels) + 1
		}
	}
	return s
}

func (s *dryRunStore) FindLabelByName(_ context.Context, name string) (*models.Label, error) {
	id, ok := s.labels[name]
	if !ok {
		return nil, nil
	}
	return &models.Label{ID: id, Name: name}, nil
}

func (s *dryRunStore) CreateReportRow(context.Context, reportimport.Record, int, reportimport.RowMeta) error {
	s.mu.Lock()
	s.rows++
	s.mu.Unlock()
	return nil
}

func (s *dryRunStore) CreateUnlinkedReport(_ context.Context, report *models.UnlinkedReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	report.ID = s.nextID
	return nil
}

func (s *dryRunStore) CreateUnlinkedReportDetail(context.Context, *models.UnlinkedReportDetail) error {
	return nil
}
