// Package apispec loads and validates the OpenAPI document a package is
// generated from. The generator receives the parsed document; the engine
// only needs the base URL and the operation inventory.
package apispec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation is one path/method pair exposed by the API under test.
type Operation struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	OperationID string `json:"operation_id,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// Document wraps a validated OpenAPI 3 document.
type Document struct {
	doc *openapi3.T
}

// Load parses and validates raw OpenAPI JSON or YAML.
func Load(ctx context.Context, raw []byte) (*Document, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("api spec is empty")
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate api spec: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Title returns the spec's info title, empty when absent.
func (d *Document) Title() string {
	if d == nil || d.doc == nil || d.doc.Info == nil {
		return ""
	}
	return d.doc.Info.Title
}

// BaseURL returns the first server URL declared by the spec. Packages may
// override it; the spec value is only the default.
func (d *Document) BaseURL() string {
	if d == nil || d.doc == nil {
		return ""
	}
	for _, server := range d.doc.Servers {
		if server == nil {
			continue
		}
		if url := strings.TrimSpace(server.URL); url != "" {
			return url
		}
	}
	return ""
}

// Operations returns every operation in the document, sorted by path then
// method for a stable inventory.
func (d *Document) Operations() []Operation {
	if d == nil || d.doc == nil || d.doc.Paths == nil {
		return nil
	}
	ops := make([]Operation, 0)
	for path, item := range d.doc.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			ops = append(ops, Operation{
				Method:      method,
				Path:        path,
				OperationID: op.OperationID,
				Summary:     op.Summary,
			})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}
