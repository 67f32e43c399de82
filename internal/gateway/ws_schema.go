package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type schemaRegistry struct {
	once    sync.Once
	initErr error
	frame   *jsonschema.Schema
	methods map[string]*jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		frameSchema, err := jsonschema.CompileString("rpc_request", rpcRequestSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.frame = frameSchema

		methods := map[string]string{
			"health":          healthParamsSchema,
			"chat.send":       chatSendParamsSchema,
			"chat.send_stream": chatSendParamsSchema,
			"chat.history":    chatHistoryParamsSchema,
			"sessions.list":   sessionsListParamsSchema,
			"sessions.delete": sessionsDeleteParamsSchema,
		}
		schemas.methods = make(map[string]*jsonschema.Schema, len(methods))
		for name, schema := range methods {
			compiled, err := jsonschema.CompileString("rpc_method_"+name, schema)
			if err != nil {
				schemas.initErr = err
				return
			}
			schemas.methods[name] = compiled
		}
	})
	return schemas.initErr
}

// validateFrame checks raw against the top-level JSON-RPC 2.0 envelope
// schema, then (if a schema is registered for req.Method) against that
// method's params schema.
func validateFrame(raw []byte, req *request) error {
	if err := initSchemas(); err != nil {
		return err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if err := schemas.frame.Validate(payload); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	schema, ok := schemas.methods[req.Method]
	if !ok {
		return nil
	}
	var params any
	if len(req.Params) == 0 {
		params = map[string]any{}
	} else if err := json.Unmarshal(req.Params, &params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := schema.Validate(params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

const rpcRequestSchema = `{
  "type": "object",
  "required": ["jsonrpc", "method"],
  "properties": {
    "jsonrpc": { "const": "2.0" },
    "id": {},
    "method": { "type": "string", "minLength": 1 },
    "params": { "type": "object" }
  },
  "additionalProperties": false
}`

const healthParamsSchema = `{
  "type": "object",
  "additionalProperties": true
}`

const chatSendParamsSchema = `{
  "type": "object",
  "required": ["text", "session_key"],
  "properties": {
    "text": { "type": "string", "maxLength": 10000 },
    "session_key": { "type": "string", "minLength": 1 },
    "context": { "type": "object" },
    "token": { "type": "string" }
  },
  "additionalProperties": true
}`

const chatHistoryParamsSchema = `{
  "type": "object",
  "required": ["session_key"],
  "properties": {
    "session_key": { "type": "string", "minLength": 1 },
    "limit": { "type": "integer", "minimum": 1, "maximum": 1000 },
    "token": { "type": "string" }
  },
  "additionalProperties": true
}`

const sessionsListParamsSchema = `{
  "type": "object",
  "properties": {
    "agent_id": { "type": "string" },
    "token": { "type": "string" }
  },
  "additionalProperties": true
}`

const sessionsDeleteParamsSchema = `{
  "type": "object",
  "required": ["session_key"],
  "properties": {
    "session_key": { "type": "string", "minLength": 1 },
    "token": { "type": "string" }
  },
  "additionalProperties": true
}`
