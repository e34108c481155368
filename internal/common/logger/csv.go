package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// CSVLogger appends audit rows to a CSV file with periodic buffering.
type CSVLogger struct {
	writer     *csv.Writer
	file       *os.File
	path       string
	toolName   string
	action     string
	rowCount   int
	lastFlush  time.Time
	flushEvery int
}

// NewCSVLogger opens (or creates) the CSV audit file for toolName and action.
// Filename pattern: {dir}/_{toolName}_{action}_{date}.csv
//
// Example: _reactivatetool_reactivate_2026-10-19.csv
func NewCSVLogger(dir, toolName, action string) (*CSVLogger, error) {
	path := auditFilePath(dir, toolName, action, "csv")
	file, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CSV log file: %w", err)
	}
	return &CSVLogger{
		writer:     csv.NewWriter(file),
		file:       file,
		path:       path,
		toolName:   toolName,
		action:     action,
		lastFlush:  time.Now(),
		flushEvery: defaultFlushEvery,
	}, nil
}

// Path returns the file being written.
func (l *CSVLogger) Path() string { return l.path }

// WriteHeader writes the header row with "Timestamp" prepended.
func (l *CSVLogger) WriteHeader(columns []string) error {
	header := append([]string{"Timestamp"}, columns...)
	if err := l.writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// WriteRow writes a timestamped row. Rows are flushed every flushEvery rows
// or when more than five seconds passed since the last flush.
func (l *CSVLogger) WriteRow(row []string) error {
	if l.file == nil {
		return fmt.Errorf("CSV logger is closed")
	}

	fullRow := append([]string{time.Now().Format("2006-01-02 15:04:05")}, row...)
	if err := l.writer.Write(fullRow); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}

	l.rowCount++
	if l.rowCount%l.flushEvery == 0 || time.Since(l.lastFlush) > defaultFlushInterval {
		l.writer.Flush()
		l.lastFlush = time.Now()
		if err := l.writer.Error(); err != nil {
			return fmt.Errorf("failed to flush CSV: %w", err)
		}
	}
	return nil
}

// Close flushes buffered rows and closes the file. Safe to call twice.
func (l *CSVLogger) Close() error {
	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	flushErr := l.writer.Error()
	closeErr := l.file.Close()
	l.file = nil
	if flushErr != nil {
		return fmt.Errorf("error flushing CSV on close: %w", flushErr)
	}
	return closeErr
}

// ShouldWriteHeader reports whether the file is empty.
func (l *CSVLogger) ShouldWriteHeader() (bool, error) {
	if l.file == nil {
		return false, fmt.Errorf("CSV logger is closed")
	}
	return isEmpty(l.file)
}
