package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-audiobooks/config"
	"github.com/aluiziolira/go-scrape-audiobooks/models"
	"github.com/pelletier/go-toml/v2"
)

// CSVHeader is the column order of CSV output.
var CSVHeader = []string{"title", "narrator", "language", "releaseDate", "sampleUrl"}

// sink is an output destination: a created file, or stdout when the
// filename is empty or "-".
type sink struct {
	w    io.Writer
	file *os.File
	path string
}

func openSink(filename string) (*sink, error) {
	if filename == "" || filename == "-" {
		return &sink{w: os.Stdout}, nil
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	return &sink{w: f, file: f, path: filename}, nil
}

func (s *sink) close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// validate ensures a file sink exists and, when wantContent is set, is not
// empty. Stdout cannot be inspected.
func (s *sink) validate(kind string, wantContent bool) error {
	if s.file == nil {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if wantContent && info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

// NewWriter returns the writer for format. Dual output derives the JSONL
// path from filename.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case config.FormatJSON:
		return NewJSONWriter(filename)
	case config.FormatJSONL:
		return NewJSONLWriter(filename)
	case config.FormatCSV:
		return NewCSVWriter(filename)
	case config.FormatTOML:
		return NewTOMLWriter(filename)
	case config.FormatDual:
		return NewDualWriter(filename, DualJSONLPath(filename))
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// DualJSONLPath returns the JSONL companion of a CSV output path. A path
// that already ends in .jsonl maps to itself; NewDualWriter rejects it.
func DualJSONLPath(csvFilename string) string {
	ext := filepath.Ext(csvFilename)
	return csvFilename[:len(csvFilename)-len(ext)] + ".jsonl"
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	out    *sink
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := openSink(filename)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(out.w)
	if err := writer.Write(CSVHeader); err != nil {
		out.close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		out.close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		out:    out,
		writer: writer,
	}, nil
}

// Write appends records to the CSV output. A missing release date is an
// empty cell.
func (cw *CSVWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, r := range records {
		releaseDate := ""
		if r.ReleaseDate != nil {
			releaseDate = r.ReleaseDate.String()
		}
		row := []string{r.Title, r.Narrator, r.Language, releaseDate, r.SampleURL}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.out.close()
}

// Validate ensures the file holds at least the header row.
func (cw *CSVWriter) Validate() error {
	return cw.out.validate("csv", true)
}

// JSONLWriter writes newline-delimited JSON records.
type JSONLWriter struct {
	out     *sink
	writer  *bufio.Writer
	encoder *json.Encoder
	count   int
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	out, err := openSink(filename)
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(out.w)
	return &JSONLWriter{
		out:     out,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONLWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, r := range records {
		if err := jw.encoder.Encode(r); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.count++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.out.close()
}

// Validate ensures the JSONL file exists and has data when records were
// written. A crawl that yields no records leaves an empty file.
func (jw *JSONLWriter) Validate() error {
	jw.mu.Lock()
	count := jw.count
	jw.mu.Unlock()
	return jw.out.validate("jsonl", count > 0)
}

// JSONWriter writes all records as one indented JSON array on Close.
type JSONWriter struct {
	out     *sink
	records []models.Record
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON array writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := openSink(filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{out: out, records: []models.Record{}}, nil
}

// Write buffers records until Close.
func (jw *JSONWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.records = append(jw.records, records...)
	return nil
}

// Close encodes the buffered records and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	encoder := json.NewEncoder(jw.out.w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(jw.records); err != nil {
		jw.out.close()
		return fmt.Errorf("encode json records: %w", err)
	}
	return jw.out.close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return jw.out.validate("json", true)
}

type tomlDocument struct {
	Records []models.Record `toml:"records"`
}

// TOMLWriter writes all records as a TOML array of tables on Close.
type TOMLWriter struct {
	out     *sink
	records []models.Record
	mu      sync.Mutex
}

// NewTOMLWriter initialises the TOML writer.
func NewTOMLWriter(filename string) (*TOMLWriter, error) {
	out, err := openSink(filename)
	if err != nil {
		return nil, err
	}
	return &TOMLWriter{out: out}, nil
}

// Write buffers records until Close.
func (tw *TOMLWriter) Write(records []models.Record) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.records = append(tw.records, records...)
	return nil
}

// Close encodes the buffered records and closes the file.
func (tw *TOMLWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := toml.NewEncoder(tw.out.w).Encode(tomlDocument{Records: tw.records}); err != nil {
		tw.out.close()
		return fmt.Errorf("encode toml records: %w", err)
	}
	return tw.out.close()
}

// Validate ensures the TOML file has data.
func (tw *TOMLWriter) Validate() error {
	return tw.out.validate("toml", true)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
