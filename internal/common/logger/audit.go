package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AuditColumns are the columns every reactivation audit row carries after
// the leading timestamp.
var AuditColumns = []string{"Action", "Status", "Email", "Step", "Detail"}

const (
	FormatCSV  = "csv"
	FormatJSON = "json"

	defaultFlushEvery    = 10
	defaultFlushInterval = 5 * time.Second
)

// AuditLogger is an append-only, header-aware row writer.
type AuditLogger interface {
	WriteHeader(columns []string) error
	WriteRow(row []string) error
	ShouldWriteHeader() (bool, error)
	Path() string
	Close() error
}

// NewAuditLogger opens the audit file for toolName/action in dir using the
// requested format. An empty dir means os.TempDir().
func NewAuditLogger(format, dir, toolName, action string) (AuditLogger, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return NewCSVLogger(dir, toolName, action)
	case FormatJSON:
		return NewJSONLogger(dir, toolName, action)
	default:
		return nil, fmt.Errorf("unsupported audit format %q (expected csv or json)", format)
	}
}

// OpenAudit opens the logger and writes the standard header when the file is new.
func OpenAudit(format, dir, toolName, action string) (AuditLogger, error) {
	l, err := NewAuditLogger(format, dir, toolName, action)
	if err != nil {
		return nil, err
	}
	needHeader, err := l.ShouldWriteHeader()
	if err != nil {
		l.Close()
		return nil, err
	}
	if needHeader {
		if err := l.WriteHeader(AuditColumns); err != nil {
			l.Close()
			return nil, err
		}
	} else if jl, ok := l.(*JSONLogger); ok {
		// Existing JSON files carry no header line; the columns are still needed for keys.
		jl.columns = append([]string(nil), AuditColumns...)
	}
	return l, nil
}

// auditFilePath builds %TEMP%/_{toolName}_{action}_{date}.{ext}.
func auditFilePath(dir, toolName, action, ext string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	dateStr := time.Now().Format("2006-01-02")
	return filepath.Join(dir, fmt.Sprintf("_%s_%s_%s.%s", toolName, action, dateStr, ext))
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func isEmpty(f *os.File) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("could not stat log file: %w", err)
	}
	return fi.Size() == 0, nil
}
