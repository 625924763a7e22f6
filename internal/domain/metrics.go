package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// LastUpdateLayout formats MetricsSummary.LastUpdate.
const LastUpdateLayout = "2006-01-02 15:04:05"

// MetricsSummary is the artifact produced by an aggregation run.
type MetricsSummary struct {
	DatasetSource     string         `json:"dataset_source"`
	LastUpdate        string         `json:"last_update"`
	KPITotalTickets   int            `json:"kpi_total_tickets"`
	BreakdownByStatus map[string]int `json:"breakdown_by_status"`
	BreakdownByYear   YearCounts     `json:"breakdown_by_year"`
}

// YearCounts maps a year to a count and always serializes with ascending keys.
type YearCounts map[int]int

// Years returns the keys in ascending order.
func (y YearCounts) Years() []int {
	years := make([]int, 0, len(y))
	for year := range y {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func (y YearCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, year := range y.Years() {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%d", strconv.Itoa(year), y[year])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (y *YearCounts) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(YearCounts, len(raw))
	for key, count := range raw {
		year, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("invalid year key %q: %w", key, err)
		}
		out[year] = count
	}
	*y = out
	return nil
}
