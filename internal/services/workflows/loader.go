package workflows

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/extracta/internal/models"
)

// workflowHeader is the part of a workflow file shared by every format
type workflowHeader struct {
	ID            string   `toml:"id" json:"id" yaml:"id"`
	Name          string   `toml:"name" json:"name" yaml:"name"`
	Description   string   `toml:"description" json:"description" yaml:"description"`
	DocumentTypes []string `toml:"document_types" json:"document_types" yaml:"document_types"`
}

// SupportedExtension reports whether path has a workflow file extension
func SupportedExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// ParseFile reads a workflow definition from a TOML, YAML or JSON file.
// The id defaults to the file name without extension.
func ParseFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var (
		header workflowHeader
		fields json.RawMessage
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		header, fields, err = parseTOML(data)
	case ".yaml", ".yml":
		header, fields, err = parseYAML(data)
	case ".json":
		header, fields, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported workflow file type: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if header.ID == "" {
		header.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &models.Workflow{
		ID:            header.ID,
		Name:          header.Name,
		Description:   header.Description,
		DocumentTypes: header.DocumentTypes,
		Fields:        fields,
		Source:        path,
	}, nil
}

func parseJSON(data []byte) (workflowHeader, json.RawMessage, error) {
	var (
		header workflowHeader
		body   struct {
			Fields json.RawMessage `json:"fields"`
		}
	)
	if err := json.Unmarshal(data, &header); err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return header, body.Fields, nil
}

// parseTOML decodes fields through a generic map, so category tables come back
// ordered by name rather than by position in the file
func parseTOML(data []byte) (workflowHeader, json.RawMessage, error) {
	var (
		header workflowHeader
		body   struct {
			Fields interface{} `toml:"fields"`
		}
	)
	if err := toml.Unmarshal(data, &header); err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := toml.Unmarshal(data, &body); err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if body.Fields == nil {
		return header, nil, nil
	}
	fields, err := json.Marshal(body.Fields)
	if err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to convert fields: %w", err)
	}
	return header, fields, nil
}

func parseYAML(data []byte) (workflowHeader, json.RawMessage, error) {
	var (
		header workflowHeader
		body   struct {
			Fields yaml.Node `yaml:"fields"`
		}
	)
	if err := yaml.Unmarshal(data, &header); err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := yaml.Unmarshal(data, &body); err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if body.Fields.Kind == 0 {
		return header, nil, nil
	}

	var buf bytes.Buffer
	if err := writeYAMLNode(&buf, &body.Fields); err != nil {
		return workflowHeader{}, nil, fmt.Errorf("failed to convert fields: %w", err)
	}
	return header, buf.Bytes(), nil
}

// writeYAMLNode renders node as JSON keeping mapping key order
func writeYAMLNode(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLNode(buf, node.Content[0])
	case yaml.AliasNode:
		return writeYAMLNode(buf, node.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLNode(buf, node.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var value interface{}
		if err := node.Decode(&value); err != nil {
			return err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	default:
		return fmt.Errorf("unsupported YAML node kind %d", node.Kind)
	}
	return nil
}
