package reportimport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrorLog appends one line per failed row to <dir>/<jobID>-errors.log.
// The file is created on the first line and appended to across resumed runs.
type ErrorLog struct {
	path  string
	f     *os.File
	lines int
	now   func() time.Time
}

func NewErrorLog(dir, jobID string) *ErrorLog {
	return &ErrorLog{
		path: filepath.Join(dir, jobID+"-errors.log"),
		now:  time.Now,
	}
}

func (l *ErrorLog) Path() string { return l.path }

// Lines is the number of lines written by this run.
func (l *ErrorLog) Lines() int { return l.lines }

// Append writes "<RFC3339> - Row <row>: <msg>".
func (l *ErrorLog) Append(row int, msg string) error {
	if l.f == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		l.f = f
	}
	msg = strings.ReplaceAll(msg, "\n", " ")
	if _, err := fmt.Fprintf(l.f, "%s - Row %d: %s\n", l.now().UTC().Format(time.RFC3339), row, msg); err != nil {
		return err
	}
	l.lines++
	return nil
}

func (l *ErrorLog) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Finalize closes the log and removes it when empty. It returns the path of
// the kept log, or "" when there is none.
func (l *ErrorLog) Finalize() (string, error) {
	if err := l.Close(); err != nil {
		return l.path, err
	}
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", os.Remove(l.path)
	}
	return l.path, nil
}
