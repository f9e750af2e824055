// Package scanner imports raw sensor readings from CSV files into the daily
// aggregate documents that virtual sensor formulas read from.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"virtual_sensors/logger"
	"virtual_sensors/models"
)

// AggregateStore reads and replaces aggregate documents.
type AggregateStore interface {
	FindAggregate(ctx context.Context, id string) (*models.SensorAggregate, error)
	UpsertAggregates(ctx context.Context, docs []*models.SensorAggregate) error
}

// CSVScanner parses CSV files in parallel and merges their rows into day buckets.
type CSVScanner struct {
	store       AggregateStore
	workerCount int
}

// FileJob represents a CSV file to be processed
type FileJob struct {
	FilePath string
	FileName string
}

// ProcessResult contains the parsed rows of one CSV file
type ProcessResult struct {
	FilePath    string
	Rows        []Row
	RecordCount int
	ErrorCount  int
	Duration    time.Duration
	Error       error
}

// Summary totals one directory import.
type Summary struct {
	Files       int
	FailedFiles int
	Rows        int
	RowErrors   int
	Buckets     int
	Duration    time.Duration
}

// NewCSVScanner creates a new CSV scanner
func NewCSVScanner(store AggregateStore) *CSVScanner {
	return &CSVScanner{
		store:       store,
		workerCount: min(runtime.NumCPU(), 8),
	}
}

// SetWorkerCount sets the number of parallel workers
func (cs *CSVScanner) SetWorkerCount(count int) {
	if count > 0 {
		cs.workerCount = count
	}
}

// ScanDirectory imports every CSV file of a directory (non-recursive).
func (cs *CSVScanner) ScanDirectory(ctx context.Context, directoryPath string) (Summary, error) {
	start := time.Now()
	logger.Printf("Scanning directory: %s\n", directoryPath)

	if _, err := os.Stat(directoryPath); os.IsNotExist(err) {
		return Summary{}, fmt.Errorf("directory does not exist: %s", directoryPath)
	}

	files, err := findCSVFiles(directoryPath)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to find CSV files: %w", err)
	}
	if len(files) == 0 {
		logger.Println("No CSV files found in the directory")
		return Summary{}, nil
	}

	logger.Printf("Found %d CSV file(s) to process with %d parallel workers\n", len(files), cs.workerCount)
	results := cs.processFilesParallel(files)

	summary := Summary{Files: len(files)}
	var rows []Row
	for _, r := range results {
		if r.Error != nil {
			summary.FailedFiles++
			continue
		}
		summary.Rows += r.RecordCount
		summary.RowErrors += r.ErrorCount
		rows = append(rows, r.Rows...)
	}

	buckets, err := cs.merge(ctx, rows)
	if err != nil {
		return summary, err
	}
	summary.Buckets = buckets
	summary.Duration = time.Since(start)

	displaySummary(results, summary)
	return summary, nil
}

func findCSVFiles(directoryPath string) ([]FileJob, error) {
	entries, err := os.ReadDir(directoryPath)
	if err != nil {
		return nil, err
	}

	var files []FileJob
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".csv" {
			continue
		}
		files = append(files, FileJob{
			FilePath: filepath.Join(directoryPath, entry.Name()),
			FileName: entry.Name(),
		})
	}
	return files, nil
}

// processFilesParallel parses CSV files using worker goroutines
func (cs *CSVScanner) processFilesParallel(files []FileJob) []ProcessResult {
	jobs := make(chan FileJob, len(files))
	results := make(chan ProcessResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < cs.workerCount; i++ {
		wg.Add(1)
		go worker(jobs, results, &wg)
	}

	go func() {
		for _, file := range files {
			jobs <- file
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []ProcessResult
	for result := range results {
		all = append(all, result)
	}
	return all
}

func worker(jobs <-chan FileJob, results chan<- ProcessResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		results <- processCSVFile(job)
	}
}

func processCSVFile(job FileJob) ProcessResult {
	startTime := time.Now()
	result := ProcessResult{FilePath: job.FilePath}

	file, err := os.Open(job.FilePath)
	if err != nil {
		result.Error = fmt.Errorf("failed to open file: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}
	defer file.Close()

	rows, errorCount, err := ParseReadings(file, job.FileName)
	result.Rows = rows
	result.RecordCount = len(rows)
	result.ErrorCount = errorCount
	result.Error = err
	result.Duration = time.Since(startTime)

	if err == nil {
		logger.Printf("✓ Parsed %s: %d records, %d errors in %v\n",
			job.FileName, result.RecordCount, result.ErrorCount, result.Duration)
	}
	return result
}

func displaySummary(results []ProcessResult, summary Summary) {
	logger.Println(strings.Repeat("=", 60))
	logger.Println("IMPORT SUMMARY")
	logger.Println(strings.Repeat("=", 60))

	for _, result := range results {
		if result.Error != nil {
			logger.Printf("❌ %s: FAILED - %v\n", filepath.Base(result.FilePath), result.Error)
			continue
		}
		logger.Printf("✅ %s: %d records, %d errors (%v)\n",
			filepath.Base(result.FilePath), result.RecordCount, result.ErrorCount, result.Duration)
	}

	logger.Println(strings.Repeat("-", 60))
	logger.Printf("Total files processed: %d\n", summary.Files)
	logger.Printf("Failed: %d\n", summary.FailedFiles)
	logger.Printf("Total readings imported: %d\n", summary.Rows)
	logger.Printf("Total parsing errors: %d\n", summary.RowErrors)
	logger.Printf("Day buckets written: %d\n", summary.Buckets)
	logger.Printf("Total processing time: %v\n", summary.Duration)
	logger.Println(strings.Repeat("=", 60))
}
