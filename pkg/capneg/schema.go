// Package capneg validates a work order's per-backend vendor config
// blob (workorder.RuntimeConfig.Vendor[backendName]) against that
// backend's declared JSON schema before capability negotiation picks
// an emulation strategy. A backend that declares no schema accepts
// any vendor blob unchecked.
package capneg

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
)

// SchemaRegistry holds one compiled JSON schema per backend name.
type SchemaRegistry struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry builds an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON (a JSON Schema document) and associates
// it with backendName. url is only used as the schema's internal $id
// for error messages; it need not resolve to anything.
func (r *SchemaRegistry) Register(backendName, url string, schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return bperr.Wrap(bperr.CodeCapabilityEmulationFailed, "capneg: adding schema resource failed", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return bperr.Wrap(bperr.CodeCapabilityEmulationFailed, "capneg: compiling schema failed", err)
	}
	r.schemas[backendName] = schema
	return nil
}

// Validate checks vendorBlob (raw JSON) for backendName against its
// registered schema. A backend with no registered schema always
// passes.
func (r *SchemaRegistry) Validate(backendName string, vendorBlob json.RawMessage) error {
	schema, ok := r.schemas[backendName]
	if !ok {
		return nil
	}
	var doc any
	if err := json.Unmarshal(vendorBlob, &doc); err != nil {
		return bperr.Wrap(bperr.CodeCapabilityEmulationFailed, "capneg: vendor blob is not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return bperr.Wrap(bperr.CodeCapabilityEmulationFailed, fmt.Sprintf("capneg: vendor config for %q failed schema validation", backendName), err)
	}
	return nil
}
