// Package validation checks JSON-RPC request params against per-method
// JSON Schemas before dispatch. Failures map to Invalid params (-32602).
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/hamidra/a2alite/internal/protocol"
)

// paramSchemas maps method names to their resolved params schema. Methods
// absent from the map accept any params.
var paramSchemas = map[string]*jsonschema.Resolved{}

func init() {
	idParams := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"id"},
		Properties: map[string]*jsonschema.Schema{
			"id":       {Type: "string"},
			"metadata": {Type: "object"},
		},
	}

	queryParams := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"id"},
		Properties: map[string]*jsonschema.Schema{
			"id":            {Type: "string"},
			"historyLength": {Type: "integer"},
			"metadata":      {Type: "object"},
		},
	}

	sendParams := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"message"},
		Properties: map[string]*jsonschema.Schema{
			"message": {
				Type:     "object",
				Required: []string{"role", "parts"},
				Properties: map[string]*jsonschema.Schema{
					"kind":      {Type: "string"},
					"messageId": {Type: "string"},
					"role":      {Enum: []any{"user", "agent"}},
					"parts": {
						Type: "array",
						Items: &jsonschema.Schema{
							Type:     "object",
							Required: []string{"kind"},
							Properties: map[string]*jsonschema.Schema{
								"kind": {Enum: []any{"text", "file", "data"}},
							},
						},
					},
					"contextId":        {Type: "string"},
					"taskId":           {Type: "string"},
					"referenceTaskIds": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"metadata":         {Type: "object"},
				},
			},
			"configuration": {Type: "object"},
			"metadata":      {Type: "object"},
		},
	}

	pushSetParams := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"taskId", "pushNotificationConfig"},
		Properties: map[string]*jsonschema.Schema{
			"taskId": {Type: "string"},
			"pushNotificationConfig": {
				Type:     "object",
				Required: []string{"url"},
				Properties: map[string]*jsonschema.Schema{
					"url":            {Type: "string"},
					"token":          {Type: "string"},
					"authentication": {Type: "object"},
				},
			},
		},
	}

	register(protocol.MethodMessageSend, sendParams)
	register(protocol.MethodMessageStream, sendParams)
	register(protocol.MethodTasksGet, queryParams)
	register(protocol.MethodTasksCancel, idParams)
	register(protocol.MethodTasksResubscribe, idParams)
	register(protocol.MethodPushNotificationConfigSet, pushSetParams)
	register(protocol.MethodPushNotificationConfigGet, idParams)
}

func register(method string, schema *jsonschema.Schema) {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("invalid params schema for %s: %v", method, err))
	}
	paramSchemas[method] = resolved
}

// CheckParams validates raw params against the method's schema. A nil
// schema (unknown method) passes; the dispatcher rejects the method name.
func CheckParams(method string, raw json.RawMessage) error {
	schema, ok := paramSchemas[method]
	if !ok {
		return nil
	}

	if len(raw) == 0 {
		return fmt.Errorf("params are required for %s", method)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("params must be a JSON object: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return err
	}
	return nil
}
