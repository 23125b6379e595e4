package reportimport_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/reportimport"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"github.com/shopspring/decimal"
)

type cliJob struct {
	id   string
	data reportimport.JobData
}

func (j cliJob) ID() string                                { return j.id }
func (j cliJob) Data() reportimport.JobData                { return j.data }
func (j cliJob) UpdateProgress(context.Context, int) error { return nil }

func TestGormReportStoreImportsAgainstMySQL(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "royalty_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	legion, err := models.CreateLabel(ctx, &models.NewLabel{Name: "Legion Records"})
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}
	if _, err := models.CreateLabel(ctx, &models.NewLabel{Name: "Legion Records"}); !errors.Is(err, models.ErrDuplicateLabel) {
		t.Fatalf("expected ErrDuplicateLabel, got %v", err)
	}
	if _, err := models.FindLabelByName(ctx, db, "legion records"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("lookup must be case-sensitive, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "kontor.csv")
	content := strings.Join([]string{
		"Label;Artist;Title;Quantity;Revenue Net;Royalty Amount;Currency",
		"Legion Records;A;T1;10;1,50;0,75;EUR",
		"Ghost Label;B;T2;2;0,20;0,10;EUR",
		"Ghost Label;B;T3;3;0,30;0,15;EUR",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	im := &reportimport.Importer{
		Store:    reportimport.NewGormReportStore(db),
		Progress: reportimport.NewMemoryProgressStore(),
	}
	res := im.Run(ctx, cliJob{id: "it-job", data: reportimport.JobData{
		FilePath:       path,
		Distributor:    models.DistributorKontor,
		ReportingMonth: "202403",
	}})
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}

	var rows []models.KontorReport
	if err := db.Where("import_job_id = ?", "it-job").Find(&rows).Error; err != nil {
		t.Fatalf("load kontor rows: %v", err)
	}
	if len(rows) != 1 || rows[0].LabelId != legion.ID {
		t.Fatalf("kontor rows = %+v", rows)
	}
	if !rows[0].RevenueNet.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("RevenueNet = %s", rows[0].RevenueNet)
	}

	var reports []models.UnlinkedReport
	if err := db.Where("import_job_id = ?", "it-job").Find(&reports).Error; err != nil {
		t.Fatalf("load unlinked reports: %v", err)
	}
	if len(reports) != 1 || reports[0].LabelName != "Ghost Label" || reports[0].Count != 2 {
		t.Fatalf("unlinked reports = %+v", reports)
	}
	var details []models.UnlinkedReportDetail
	if err := db.Where("unlinked_report_id = ?", reports[0].ID).Order("row_index").Find(&details).Error; err != nil {
		t.Fatalf("load details: %v", err)
	}
	if len(details) != 2 || details[0].RowIndex != 2 || details[1].RowIndex != 3 {
		t.Fatalf("details = %+v", details)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("royalty-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=royalty_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
