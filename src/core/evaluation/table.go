package evaluation

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"
	"time"
)

// NameColumn is the first column of every results table.
const NameColumn = "combination_name"

// FailedLabel is printed in place of a missing value.
const FailedLabel = "failed"

// Scores maps a metric name to its value. A missing value is NaN.
type Scores map[string]float64

// MissingScores returns scores with every metric missing.
func MissingScores(metrics []string) Scores {
	s := make(Scores, len(metrics))
	for _, m := range metrics {
		s[m] = math.NaN()
	}
	return s
}

// MarshalJSON encodes missing values as null.
func (s Scores) MarshalJSON() ([]byte, error) {
	out := make(map[string]*float64, len(s))
	for k, v := range s {
		if math.IsNaN(v) {
			out[k] = nil
			continue
		}
		v := v
		out[k] = &v
	}
	return json.Marshal(out)
}

func (s *Scores) UnmarshalJSON(data []byte) error {
	var in map[string]*float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = make(Scores, len(in))
	for k, v := range in {
		if v == nil {
			(*s)[k] = math.NaN()
			continue
		}
		(*s)[k] = *v
	}
	return nil
}

// Average returns the mean of each metric over rows, skipping missing values.
// A metric with no value in any row is missing.
func Average(rows []Scores, metrics []string) Scores {
	avg := make(Scores, len(metrics))
	for _, m := range metrics {
		var sum float64
		n := 0
		for _, r := range rows {
			v, ok := r[m]
			if !ok || math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			avg[m] = math.NaN()
			continue
		}
		avg[m] = sum / float64(n)
	}
	return avg
}

// QuestionResult is the outcome of one benchmark question.
type QuestionResult struct {
	Question    string   `json:"question"`
	GroundTruth string   `json:"ground_truth"`
	Answer      string   `json:"answer,omitempty"`
	Contexts    []string `json:"contexts,omitempty"`
	Scores      Scores   `json:"scores"`
	Error       string   `json:"error,omitempty"`
}

// Result is the averaged outcome of one preset.
type Result struct {
	Name      string           `json:"combination_name"`
	Preset    Preset           `json:"preset"`
	Scores    Scores           `json:"scores"`
	Questions []QuestionResult `json:"questions"`
	// Partial marks a preset interrupted before every question ran.
	Partial bool `json:"partial,omitempty"`
}

// Table is the ordered sweep output.
type Table struct {
	Metrics    []string  `json:"metrics"`
	Results    []Result  `json:"results"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Columns returns the name column followed by the configured metrics that
// appear in at least one result.
func (t *Table) Columns() []string {
	cols := []string{NameColumn}
	for _, m := range t.Metrics {
		for _, r := range t.Results {
			if _, ok := r.Scores[m]; ok {
				cols = append(cols, m)
				break
			}
		}
	}
	return cols
}

func (t *Table) rows(missing string) [][]string {
	cols := t.Columns()
	rows := make([][]string, 0, len(t.Results))
	for _, r := range t.Results {
		row := make([]string, len(cols))
		row[0] = r.Name
		for i, c := range cols[1:] {
			v, ok := r.Scores[c]
			if !ok || math.IsNaN(v) {
				row[i+1] = missing
				continue
			}
			row[i+1] = strconv.FormatFloat(v, 'f', 4, 64)
		}
		rows = append(rows, row)
	}
	return rows
}

// Render writes an aligned text table.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	cols := t.Columns()
	if err := writeTabRow(tw, cols); err != nil {
		return err
	}
	for _, row := range t.rows(FailedLabel) {
		if err := writeTabRow(tw, row); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writeTabRow(w io.Writer, cells []string) error {
	for i, c := range cells {
		sep := "\t"
		if i == len(cells)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprint(w, c, sep); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes the table as CSV. Missing values are empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.rows("")); err != nil {
		return err
	}
	return cw.Error()
}

// WriteJSON writes the full table including per-question detail.
func (t *Table) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}
