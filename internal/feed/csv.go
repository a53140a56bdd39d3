package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"lineflow/internal/model"
)

// LoadCSV reads bars from a CSV file with a header line. Recognized columns
// (case-insensitive): datetime/date/ts, open, high, low, close, volume,
// openinterest/oi. Timestamps are RFC3339, "2006-01-02 15:04:05",
// "2006-01-02", or Unix seconds. Rows must be ordered ascending.
func LoadCSV(path, symbol, exchange string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header %s: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	col := func(names ...string) int {
		for _, n := range names {
			if i, ok := cols[n]; ok {
				return i
			}
		}
		return -1
	}
	dtCol := col("datetime", "date", "ts", "time")
	if dtCol < 0 {
		return nil, fmt.Errorf("csv %s: no datetime column", path)
	}
	oCol, hCol, lCol, cCol := col("open"), col("high"), col("low"), col("close")
	if cCol < 0 {
		return nil, fmt.Errorf("csv %s: no close column", path)
	}
	vCol, oiCol := col("volume", "vol"), col("openinterest", "oi")

	var bars []model.Bar
	for lineNo := 2; ; lineNo++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", path, lineNo, err)
		}
		ts, err := parseTime(rec[dtCol])
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", path, lineNo, err)
		}
		b := model.Bar{Symbol: symbol, Exchange: exchange, TS: ts}
		b.Close = parseFloat(rec, cCol)
		b.Open = parseFloatOr(rec, oCol, b.Close)
		b.High = parseFloatOr(rec, hCol, b.Close)
		b.Low = parseFloatOr(rec, lCol, b.Close)
		b.Volume = parseFloatOr(rec, vCol, 0)
		b.OpenInterest = parseFloatOr(rec, oiCol, 0)
		bars = append(bars, b)
	}
	return bars, nil
}

// NewCSVSource loads a CSV file eagerly into a slice source.
func NewCSVSource(path, symbol, exchange string) (*SliceSource, error) {
	bars, err := LoadCSV(path, symbol, exchange)
	if err != nil {
		return nil, err
	}
	return NewSliceSource(bars), nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func parseFloat(rec []string, i int) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	return v
}

func parseFloatOr(rec []string, i int, fallback float64) float64 {
	if i < 0 || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
		return fallback
	}
	return parseFloat(rec, i)
}
