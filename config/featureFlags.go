package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// ReportImportLockEnabled serializes imports of the same distributor + reporting month
// across workers with a redis lock. The per-job lock is always held.
//
// Set via env:
// - REPORT_IMPORT_LOCK=false to disable (default enabled)
func ReportImportLockEnabled() bool {
	return envBool("REPORT_IMPORT_LOCK", true)
}

// ReportImportLockTTL is the lease of the import lock; the holder refreshes it while running.
//
// Set via env:
// - REPORT_IMPORT_LOCK_TTL_SECONDS (default 60)
func ReportImportLockTTL() time.Duration {
	return time.Duration(intFromEnv("REPORT_IMPORT_LOCK_TTL_SECONDS", 60)) * time.Second
}

// CleanupProgressOnSuccess removes the resume cursor once a job finished without a fatal error.
// Off by default: finished cursors are left to expire.
//
// Set via env:
// - REPORT_IMPORT_CLEANUP_PROGRESS=true
func CleanupProgressOnSuccess() bool {
	return envBool("REPORT_IMPORT_CLEANUP_PROGRESS", false)
}

// ReportImportProgressTTL bounds how long a resume cursor survives in redis.
//
// Set via env:
// - REPORT_IMPORT_PROGRESS_TTL_HOURS (default 168, 0 = no expiry)
func ReportImportProgressTTL() time.Duration {
	return time.Duration(intFromEnv("REPORT_IMPORT_PROGRESS_TTL_HOURS", 168)) * time.Hour
}

// ReportImportErrorLogDir is where per-job error logs are written.
// Empty means next to the input file.
//
// Set via env:
// - REPORT_IMPORT_ERROR_LOG_DIR
func ReportImportErrorLogDir() string {
	return strings.TrimSpace(os.Getenv("REPORT_IMPORT_ERROR_LOG_DIR"))
}

// ReportImportUploadDir holds uploaded reports when STORAGE_PROVIDER is local,
// and downloaded copies of GCS objects while a job runs.
//
// Set via env:
// - REPORT_IMPORT_UPLOAD_DIR (default $TMPDIR/report-imports)
func ReportImportUploadDir() string {
	if v := strings.TrimSpace(os.Getenv("REPORT_IMPORT_UPLOAD_DIR")); v != "" {
		return v
	}
	return filepath.Join(os.TempDir(), "report-imports")
}
