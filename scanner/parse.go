package scanner

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"virtual_sensors/logger"
)

// Row is one raw reading: timestamp,sensor_id,measurement_type,value[,unit].
type Row struct {
	Time            int64
	SensorID        string
	MeasurementType string
	Value           float64
	Unit            string
}

// ParseReadings reads CSV rows, skipping an optional header. Malformed rows
// are logged and counted, not fatal.
func ParseReadings(r io.Reader, fileName string) ([]Row, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("empty CSV file")
	}

	startRow := 0
	if isHeaderRow(records[0]) {
		startRow = 1
	}

	var rows []Row
	var errorCount int
	for i := startRow; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if len(record) < 4 {
			errorCount++
			logger.Warnf("Row %d in %s has insufficient columns (expected 4, got %d)\n", i+1, fileName, len(record))
			continue
		}

		ts, err := parseTimestamp(strings.TrimSpace(record[0]))
		if err != nil {
			errorCount++
			logger.Warnf("Row %d in %s has invalid timestamp format: %s\n", i+1, fileName, record[0])
			continue
		}

		sensorID := strings.TrimSpace(record[1])
		measurementType := strings.TrimSpace(record[2])
		if sensorID == "" || measurementType == "" {
			errorCount++
			logger.Warnf("Row %d in %s has empty sensor id or measurement type\n", i+1, fileName)
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err != nil {
			errorCount++
			logger.Warnf("Row %d in %s has invalid value: %s\n", i+1, fileName, record[3])
			continue
		}

		row := Row{
			Time:            ts.UnixMilli(),
			SensorID:        sensorID,
			MeasurementType: measurementType,
			Value:           value,
		}
		if len(record) > 4 {
			row.Unit = strings.TrimSpace(record[4])
		}
		rows = append(rows, row)
	}
	return rows, errorCount, nil
}

// parseTimestamp accepts epoch milliseconds, ISO-8601 and "2006-01-02 15:04:05" (UTC).
func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := iso8601.ParseString(s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateTime, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t.UTC(), nil
}

func isHeaderRow(row []string) bool {
	if len(row) < 4 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	for _, word := range []string{"timestamp", "time", "date"} {
		if strings.Contains(first, word) {
			return true
		}
	}
	_, err := parseTimestamp(strings.TrimSpace(row[0]))
	return err != nil
}
