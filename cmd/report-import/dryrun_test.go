package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/reportimport"
	"github.com/sirupsen/logrus"
)

func TestDryRunLinksOnlyListedLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "believe.csv")
	content := strings.Join([]string{
		"Label Name;Artist Name;Track Title;Quantity;Net Revenue;Sales Month",
		"Legion;A;T1;1;0,10;2024-03",
		"Other;B;T2;2;0,20;2024-03",
		" ;C;T3;3;0,30;2024-03",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := newDryRunStore("Legion, ,Legion")
	if len(store.labels) != 1 {
		t.Fatalf("labels = %v", store.labels)
	}
	logger := logrus.New()
	im := &reportimport.Importer{Store: store, Progress: reportimport.NewMemoryProgressStore(), KeepInput: true, Logger: logger}
	res := im.Run(context.Background(), &cliJob{
		id:     "dry",
		data:   reportimport.JobData{FilePath: path, Distributor: models.DistributorBelieve},
		logger: logger,
	})
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if store.rows != 1 || res.Counts.Linked != 1 || res.Counts.Unlinked != 1 || res.Counts.Dropped != 1 {
		t.Fatalf("rows=%d counts=%+v", store.rows, res.Counts)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("input must be kept: %v", err)
	}
	out := renderResult(res, store)
	if !strings.Contains(out, "Rows written (dry run)") || !strings.Contains(out, "success") {
		t.Fatalf("table:\n%s", out)
	}
}
