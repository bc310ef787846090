// Package scenariodoc decodes hand-authored scenario documents. Documents
// are YAML (JSON is valid YAML), decoded strictly so a typo in a field name
// is an error instead of a silently dropped assertion.
package scenariodoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
)

type stepDoc struct {
	Name     string            `yaml:"name"`
	Method   string            `yaml:"method"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Body     string            `yaml:"body"`
	Expect   expectDoc         `yaml:"expect"`
	Extract  map[string]string `yaml:"extract"`
}

type expectDoc struct {
	Status       int        `yaml:"status"`
	BodyContains stringList `yaml:"body_contains"`
}

// stringList accepts either a single scalar or a sequence in YAML.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*l = stringList{single}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	*l = stringList(many)
	return nil
}

type scenarioDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Steps       []stepDoc `yaml:"steps"`
}

// Parse decodes one or more YAML documents into scenarios for the given
// package. Step order follows document order; scenario ids are left for the
// caller to assign.
func Parse(packageID string, raw []byte) ([]domain.TestScenario, error) {
	if strings.TrimSpace(packageID) == "" {
		return nil, errors.New("package id is required")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("scenario document is empty")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)

	scenarios := make([]domain.TestScenario, 0, 1)
	for {
		var doc scenarioDoc
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode scenario document %d: %w", len(scenarios)+1, err)
		}
		scenario, err := toScenario(packageID, doc)
		if err != nil {
			return nil, fmt.Errorf("scenario document %d: %w", len(scenarios)+1, err)
		}
		scenarios = append(scenarios, scenario)
	}
	if len(scenarios) == 0 {
		return nil, errors.New("scenario document is empty")
	}
	return scenarios, nil
}

func toScenario(packageID string, doc scenarioDoc) (domain.TestScenario, error) {
	scenario := domain.TestScenario{
		PackageID:   packageID,
		Name:        strings.TrimSpace(doc.Name),
		Description: strings.TrimSpace(doc.Description),
		Steps:       make([]domain.TestStep, 0, len(doc.Steps)),
	}
	for i, step := range doc.Steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		scenario.Steps = append(scenario.Steps, domain.TestStep{
			Index:            i,
			Name:             name,
			Method:           strings.ToUpper(strings.TrimSpace(step.Method)),
			EndpointTemplate: strings.TrimSpace(step.Endpoint),
			HeaderTemplates:  step.Headers,
			BodyTemplate:     step.Body,
			Expected: domain.ExpectedResult{
				StatusCode:   step.Expect.Status,
				BodyContains: []string(step.Expect.BodyContains),
			},
			Extract: step.Extract,
		})
	}
	// Scenario ids come from the caller; validate everything else now so a
	// bad document is rejected before anything is persisted.
	probe := scenario
	probe.ID = "pending"
	if err := probe.Validate(); err != nil {
		return domain.TestScenario{}, err
	}
	return scenario, nil
}
