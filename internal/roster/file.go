package roster

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rosterbridge/internal/model"
)

// FileReader reads the roster from a YAML or JSON export.
//
// The document is either a bare list of employees or a mapping with an
// "employees" key:
//
//	employees:
//	  - id: emp-001
//	    name: Ada Lovelace
//	    attributes: {department: research}
//
// JSON is accepted through the same decoder.
type FileReader struct {
	Path string
}

type rosterDocument struct {
	Employees []model.Employee `yaml:"employees"`
}

// FetchRoster reads and decodes the file on every call.
func (r *FileReader) FetchRoster(ctx context.Context) ([]model.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	employees, err := decodeRoster(data)
	if err != nil {
		return nil, fmt.Errorf("decode roster file %s: %w: %w", r.Path, ErrInvalidRoster, err)
	}
	return employees, nil
}

func decodeRoster(data []byte) ([]model.Employee, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return []model.Employee{}, nil
	}

	var employees []model.Employee
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&employees); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var wrapped rosterDocument
		if err := doc.Decode(&wrapped); err != nil {
			return nil, err
		}
		employees = wrapped.Employees
	default:
		return nil, fmt.Errorf("line %d: expected a list of employees or an employees mapping", doc.Line)
	}

	for i, e := range employees {
		if e.StableID == "" {
			return nil, fmt.Errorf("employee %d: missing id", i+1)
		}
	}
	if employees == nil {
		employees = []model.Employee{}
	}
	return employees, nil
}
