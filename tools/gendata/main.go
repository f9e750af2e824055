// Command gendata writes raw sensor readings as CSV files that the scan
// command imports, plus a sample virtual sensor change event for the process
// command.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

type Generator struct {
	filename        string
	measurementType string
	unit            string
	sensors         []string
	step            time.Duration
	value           func(rng *rand.Rand, t time.Time, sensor int) float64
}

type SensorReading struct {
	Timestamp       time.Time
	SensorID        string
	MeasurementType string
	Value           float64
	Unit            string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./tools/gendata <output_directory> [days]")
		fmt.Println("Example: go run ./tools/gendata test_data 7")
		return
	}

	outputDir := os.Args[1]
	days := 7
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n <= 0 {
			fmt.Printf("Invalid number of days: %s\n", os.Args[2])
			return
		}
		days = n
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Failed to create directory: %v\n", err)
		return
	}

	start := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	generators := []Generator{
		{
			filename:        "temperature.csv",
			measurementType: "temperature",
			unit:            "°C",
			sensors:         []string{"ANZ01", "ANZ02", "ANZ03"},
			step:            5 * time.Minute,
			value: func(rng *rand.Rand, t time.Time, sensor int) float64 {
				hourAngle := float64(t.Hour()) * math.Pi / 12
				return 20.0 + 8.0*math.Sin(hourAngle-math.Pi/2) + rng.Float64()*2 - 1 + float64(sensor)*0.5
			},
		},
		{
			filename:        "humidity.csv",
			measurementType: "humidity",
			unit:            "%",
			sensors:         []string{"ANZ01", "ANZ02"},
			step:            5 * time.Minute,
			value: func(rng *rand.Rand, t time.Time, sensor int) float64 {
				minute := float64(t.Hour()*60 + t.Minute())
				return math.Max(30, math.Min(95, 70.0-minute/1440*15+rng.Float64()*4-2+float64(sensor)*2))
			},
		},
		{
			filename:        "power.csv",
			measurementType: "activeEnergy",
			unit:            "kWh",
			sensors:         []string{"POD01", "POD02"},
			step:            15 * time.Minute,
			value: func(rng *rand.Rand, t time.Time, sensor int) float64 {
				if t.Hour() < 7 || t.Hour() > 19 {
					return rng.Float64() * 0.2
				}
				return 1.5 + rng.Float64() + float64(sensor)*0.3
			},
		},
	}

	var wg sync.WaitGroup
	for i, gen := range generators {
		wg.Add(1)
		go generateMockData(int64(i), outputDir, gen, start, days, &wg)
	}
	wg.Wait()

	if err := writeEvent(filepath.Join(outputDir, "event.json"), start, days); err != nil {
		fmt.Printf("Failed to write event.json: %v\n", err)
		return
	}
	fmt.Println("All mocked data generated.")
}

func generateMockData(seed int64, outputDir string, gen Generator, start time.Time, days int, wg *sync.WaitGroup) {
	defer wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + seed))

	var readings []SensorReading
	end := start.AddDate(0, 0, days)
	for t := start; t.Before(end); t = t.Add(gen.step) {
		for j, sensor := range gen.sensors {
			readings = append(readings, SensorReading{
				Timestamp:       t,
				SensorID:        sensor,
				MeasurementType: gen.measurementType,
				Value:           gen.value(rng, t, j),
				Unit:            gen.unit,
			})
		}
	}

	csvFilepath := filepath.Join(outputDir, gen.filename)
	if err := writeCSV(csvFilepath, readings); err != nil {
		fmt.Printf("Failed to write %s: %v\n", gen.filename, err)
		return
	}
	fmt.Printf("Generated %s with %d records\n", gen.filename, len(readings))
}

func writeCSV(filename string, readings []SensorReading) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.WriteString("timestamp,sensor_id,measurement_type,value,unit\n"); err != nil {
		return err
	}
	for _, r := range readings {
		line := fmt.Sprintf("%s,%s,%s,%.2f,%s\n",
			r.Timestamp.Format(time.RFC3339), r.SensorID, r.MeasurementType, r.Value, r.Unit)
		if _, err := file.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

// writeEvent writes a change event for a virtual sensor averaging the temperature sensors.
func writeEvent(filename string, start time.Time, days int) error {
	event := map[string]any{
		"id":        fmt.Sprintf("gendata-%d", time.Now().Unix()),
		"type":      "element replaced in collection sensors",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id": "VIRTUAL01",
			"element": map[string]any{
				"virtual":           true,
				"unitOfMeasurement": "°C",
				"formulas": []map[string]any{
					{
						"formula":          "(ANZ01 + ANZ02 + ANZ03) / 3",
						"variables":        []string{"ANZ01", "ANZ02", "ANZ03"},
						"measurementType":  []string{"temperature"},
						"start":            start.Format(time.RFC3339),
						"end":              start.AddDate(0, 0, days-1).Format(time.RFC3339),
						"measurementDelta": 300000,
					},
					{
						"formula": "x - y",
						"variables": []map[string]string{
							{"symbol": "x", "sensorId": "POD01", "measurementType": "activeEnergy"},
							{"symbol": "y", "sensorId": "POD02", "measurementType": "activeEnergy"},
						},
						"measurementType":  "activeEnergy",
						"measurementUnit":  "kWh",
						"start":            start.Format(time.RFC3339),
						"measurementDelta": 900000,
					},
				},
			},
		},
	}

	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
