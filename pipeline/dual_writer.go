package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-audiobooks/models"
)

// DualWriter outputs to both CSV and JSONL simultaneously.
type DualWriter struct {
	csvWriter   *CSVWriter
	jsonlWriter *JSONLWriter
	mu          sync.Mutex
}

// NewDualWriter creates a writer for CSV and JSONL output. Both outputs must
// be distinct files.
func NewDualWriter(csvFilename, jsonlFilename string) (*DualWriter, error) {
	if filepath.Clean(csvFilename) == filepath.Clean(jsonlFilename) {
		return nil, fmt.Errorf("create dual writer: csv and jsonl outputs share %s", csvFilename)
	}

	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonlWriter, err := NewJSONLWriter(jsonlFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create jsonl writer: %w", err)
	}

	return &DualWriter{
		csvWriter:   csvWriter,
		jsonlWriter: jsonlWriter,
	}, nil
}

// Write writes records to both outputs.
func (dw *DualWriter) Write(records []models.Record) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := dw.jsonlWriter.Write(records); err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close csv: %w", err))
	}
	if err := dw.jsonlWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close jsonl: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("validate csv: %w", err))
	}
	if err := dw.jsonlWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("validate jsonl: %w", err))
	}
	return errors.Join(errs...)
}
