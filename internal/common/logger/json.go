package logger

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// JSONLogger appends audit rows as JSON lines. Each row becomes one object
// keyed by the header columns plus a "timestamp" field. No header line is
// written to the file.
type JSONLogger struct {
	file       *os.File
	path       string
	buf        *bufio.Writer
	zl         zerolog.Logger
	columns    []string
	rowCount   int
	lastFlush  time.Time
	flushEvery int
}

// NewJSONLogger opens (or creates) {dir}/_{toolName}_{action}_{date}.jsonl.
func NewJSONLogger(dir, toolName, action string) (*JSONLogger, error) {
	path := auditFilePath(dir, toolName, action, "jsonl")
	file, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("could not create JSON log file: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &JSONLogger{
		file:       file,
		path:       path,
		buf:        buf,
		zl:         zerolog.New(buf),
		lastFlush:  time.Now(),
		flushEvery: defaultFlushEvery,
	}, nil
}

// Path returns the file being written.
func (l *JSONLogger) Path() string { return l.path }

// WriteHeader records the column names used as keys for later rows.
func (l *JSONLogger) WriteHeader(columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("header must contain at least one column")
	}
	l.columns = append([]string(nil), columns...)
	return nil
}

// WriteRow writes one JSON object. The row must match the header length.
func (l *JSONLogger) WriteRow(row []string) error {
	if l.file == nil {
		return fmt.Errorf("JSON logger is closed")
	}
	if l.columns == nil {
		return fmt.Errorf("WriteHeader must be called before WriteRow")
	}
	if len(row) != len(l.columns) {
		return fmt.Errorf("row has %d values but header has %d columns", len(row), len(l.columns))
	}

	ev := l.zl.Log().Str("timestamp", time.Now().Format(time.RFC3339))
	for i, col := range l.columns {
		ev = ev.Str(col, row[i])
	}
	ev.Send()

	l.rowCount++
	if l.rowCount%l.flushEvery == 0 || time.Since(l.lastFlush) > defaultFlushInterval {
		l.lastFlush = time.Now()
		if err := l.buf.Flush(); err != nil {
			return fmt.Errorf("failed to flush JSON log: %w", err)
		}
	}
	return nil
}

// Close flushes buffered rows and closes the file. Safe to call twice.
func (l *JSONLogger) Close() error {
	if l.file == nil {
		return nil
	}
	flushErr := l.buf.Flush()
	closeErr := l.file.Close()
	l.file = nil
	if flushErr != nil {
		return fmt.Errorf("error flushing JSON log on close: %w", flushErr)
	}
	return closeErr
}

// ShouldWriteHeader reports whether the file is empty.
func (l *JSONLogger) ShouldWriteHeader() (bool, error) {
	if l.file == nil {
		return false, fmt.Errorf("JSON logger is closed")
	}
	return isEmpty(l.file)
}
