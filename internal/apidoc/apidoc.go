// Package apidoc loads an OpenAPI document and checks the parts of it the
// services rely on: the error envelope and the documented operations.
package apidoc

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the subset of OpenAPI 3 read by the checks.
type Document struct {
	OpenAPI    string              `yaml:"openapi"`
	Paths      map[string]PathItem `yaml:"paths"`
	Components struct {
		Schemas map[string]Schema `yaml:"schemas"`
	} `yaml:"components"`
}

// PathItem maps lower-case HTTP methods to operations. Path-level
// parameters are ignored.
type PathItem map[string]yaml.Node

type Schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]Schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *Schema           `yaml:"items"`
	Enum       []string          `yaml:"enum"`
}

type operation struct {
	OperationID string               `yaml:"operationId"`
	Responses   map[string]yaml.Node `yaml:"responses"`
}

// Operation is one documented method and path pair.
type Operation struct {
	Method string
	Path   string
	ID     string
}

func (o Operation) String() string { return o.Method + " " + o.Path }

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// Load reads and parses the document at path.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse openapi: %w", err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		return doc, fmt.Errorf("unsupported openapi version %q", doc.OpenAPI)
	}
	return doc, nil
}

// Operations lists every documented operation sorted by path then method.
// Each must carry an operationId and at least one response.
func (d Document) Operations() ([]Operation, error) {
	var out []Operation
	for path, item := range d.Paths {
		for method, node := range item {
			if !httpMethods[method] {
				continue
			}
			var op operation
			if err := node.Decode(&op); err != nil {
				return nil, fmt.Errorf("%s %s: %w", method, path, err)
			}
			if strings.TrimSpace(op.OperationID) == "" {
				return nil, fmt.Errorf("%s %s: operationId missing", strings.ToUpper(method), path)
			}
			if len(op.Responses) == 0 {
				return nil, fmt.Errorf("%s %s: responses missing", strings.ToUpper(method), path)
			}
			out = append(out, Operation{Method: strings.ToUpper(method), Path: path, ID: op.OperationID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	seen := make(map[string]string, len(out))
	for _, op := range out {
		if prev, ok := seen[op.ID]; ok {
			return nil, fmt.Errorf("operationId %q used by %s and %s", op.ID, prev, op)
		}
		seen[op.ID] = op.String()
	}
	return out, nil
}

// Schema returns the named component schema.
func (d Document) Schema(name string) (Schema, error) {
	if d.Components.Schemas == nil {
		return Schema{}, errors.New("components.schemas missing")
	}
	s, ok := d.Components.Schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// ValidateErrorResponse checks the ErrorResponse envelope: an object with
// required string error, kind and code, an optional string requestId, and
// enumerated kind and code values.
func (d Document) ValidateErrorResponse() error {
	s, err := d.Schema("ErrorResponse")
	if err != nil {
		return err
	}
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "kind", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "kind", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	for _, field := range []string{"kind", "code"} {
		if len(s.Properties[field].Enum) == 0 {
			return fmt.Errorf("ErrorResponse.%s must enumerate its values", field)
		}
	}
	return nil
}

// ErrorCodes returns the enumerated ErrorResponse.code values.
func (d Document) ErrorCodes() []string {
	s, err := d.Schema("ErrorResponse")
	if err != nil {
		return nil
	}
	return append([]string(nil), s.Properties["code"].Enum...)
}

// ErrorKinds returns the enumerated ErrorResponse.kind values.
func (d Document) ErrorKinds() []string {
	s, err := d.Schema("ErrorResponse")
	if err != nil {
		return nil
	}
	return append([]string(nil), s.Properties["kind"].Enum...)
}

func makeSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
