package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrEmptyBenchmark = errors.New("benchmark has no items")

// BenchmarkItem is one question with its reference answer.
type BenchmarkItem struct {
	Question    string `json:"question" mapstructure:"question"`
	GroundTruth string `json:"ground_truth" mapstructure:"ground_truth"`
}

// DefaultBenchmark returns the built-in insurance policy question set.
func DefaultBenchmark() []BenchmarkItem {
	return []BenchmarkItem{
		{
			Question:    "¿Cuáles son las condiciones que deben darse para que la compañía aseguradora reembolse los gastos médicos?",
			GroundTruth: "Que haya transcurrido el periodo de carencia, que la póliza esté vigente y que no haya transcurrido el plazo para la cobertura del Evento.",
		},
		{
			Question:    "¿Cuáles son las coberturas que otorga la compañía aseguradora para prestaciones médicas de alto costo?",
			GroundTruth: "Beneficio de hospitalización (días cama, servicios, honorarios médicos), prótesis, cirugía dental por accidente, servicio de enfermera y ambulancia, y beneficio ambulatorio.",
		},
		{
			Question:    "¿Cuáles son las exclusiones del seguro de COVID-19?",
			GroundTruth: "Gastos de hospitalización, rehabilitación o fallecimiento asociados a enfermedades distintas al COVID-19.",
		},
		{
			Question:    "¿Cuándo debe ser denunciado el siniestro de enfermedades graves?",
			GroundTruth: "El asegurado debe notificar a la compañía tan pronto sea posible una vez tomado conocimiento del diagnóstico de la enfermedad grave cubierta.",
		},
	}
}

// LoadBenchmark decodes a JSON array of {"question", "ground_truth"} objects.
func LoadBenchmark(r io.Reader) ([]BenchmarkItem, error) {
	var items []BenchmarkItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode benchmark: %w", err)
	}
	if err := ValidateBenchmark(items); err != nil {
		return nil, err
	}
	return items, nil
}

func ValidateBenchmark(items []BenchmarkItem) error {
	if len(items) == 0 {
		return ErrEmptyBenchmark
	}
	for i, it := range items {
		if strings.TrimSpace(it.Question) == "" {
			return fmt.Errorf("benchmark item %d: empty question", i)
		}
		if strings.TrimSpace(it.GroundTruth) == "" {
			return fmt.Errorf("benchmark item %d: empty ground truth", i)
		}
	}
	return nil
}
