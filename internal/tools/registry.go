// Package tools maps tool names to handlers and validates their inputs.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// ErrUnknownTool is wrapped in the NotFound error Dispatch returns for unregistered names.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes a tool with a body that already passed schema validation.
type Handler func(ctx context.Context, body json.RawMessage) (any, error)

// Tool is one dispatchable operation.
type Tool struct {
	Name        string
	Description string
	// Schema is a JSON Schema document for the request body. Empty accepts any object.
	Schema  string
	Handler Handler

	schema *gojsonschema.Schema
}

// Info is the public description of a registered tool.
type Info struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Registry holds tools by name. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register compiles t's schema and adds it. Names are unique.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return errors.New("tool needs a name and a handler")
	}
	if t.Schema != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(t.Schema))
		if err != nil {
			return fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		t.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = &t
	return nil
}

// MustRegister is Register for static tool tables.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List describes registered tools in name order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		info := Info{Name: t.Name, Description: t.Description}
		if t.Schema != "" {
			info.Schema = json.RawMessage(t.Schema)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks body against the named tool's schema without running it.
func (r *Registry) Validate(name string, body []byte) error {
	_, _, err := r.prepare(name, body)
	return err
}

// Dispatch validates body against the tool's schema and runs it.
// An empty body is treated as {}.
func (r *Registry) Dispatch(ctx context.Context, name string, body []byte) (*model.ToolResponse, error) {
	t, body, err := r.prepare(name, body)
	if err != nil {
		return nil, err
	}

	result, err := t.Handler(ctx, body)
	if err != nil {
		return nil, err
	}
	return &model.ToolResponse{Tool: name, Result: result}, nil
}

func (r *Registry) prepare(name string, body []byte) (*Tool, []byte, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, apperr.Wrap(apperr.KindNotFound, "Unknown tool: "+name, ErrUnknownTool)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return nil, nil, apperr.Validation("request body must be valid JSON")
	}
	if err := t.validate(body); err != nil {
		return nil, nil, err
	}
	return t, body, nil
}

func (t *Tool) validate(body []byte) error {
	if t.schema == nil {
		return nil
	}
	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.Validation("invalid request body: " + err.Error())
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return apperr.Validation("invalid request body: " + strings.Join(msgs, "; "))
}
