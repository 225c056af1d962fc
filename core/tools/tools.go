// Package tools keeps a registry of schema-described functions that outside
// callers (an assistant, a console command) can invoke by name with JSON
// arguments.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`

	// Execute parses the JSON arguments and runs the tool.
	Execute func(arguments string) (string, error) `json:"-"`
}

type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// New builds a tool whose parameter schema is reflected from the callback's
// argument struct. Field names and descriptions come from the json and
// jsonschema tags.
func New[T any](name, description string, execute func(parameters T) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.ReflectFromType(reflect.TypeOf((*T)(nil)).Elem())

	return Tool{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		Execute: func(arguments string) (string, error) {
			var parameters T
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
					return "", fmt.Errorf("failed to parse arguments: %w", err)
				}
			}
			return execute(parameters)
		},
	}
}

type Registry struct {
	mu    sync.Mutex
	tools []Tool
}

func NewRegistry(tools ...Tool) *Registry {
	registry := &Registry{}
	registry.Register(tools...)
	return registry
}

func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, tools...)
}

// Tools returns a snapshot of the registered definitions.
func (r *Registry) Tools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tools []Tool
	_ = copier.Copy(&tools, r.tools)
	return tools
}

func (r *Registry) Call(ctx context.Context, name, arguments string) (string, error) {
	_, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	r.mu.Lock()
	var execute func(string) (string, error)
	for _, tool := range r.tools {
		if tool.Function.Name == name {
			execute = tool.Execute
			break
		}
	}
	r.mu.Unlock()

	if execute == nil {
		err := fmt.Errorf("tool not found: %s", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	resp, err := execute(arguments)
	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return resp, nil
}
