package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Role distinguishes request and response payloads of an action.
type Role string

const (
	RoleRequest  Role = "request"
	RoleResponse Role = "response"
)

// Validator checks one payload. It returns nil when the payload conforms.
type Validator func(payload json.RawMessage) error

type schemaKey struct {
	version string
	action  string
	role    Role
}

// Registry maps (ocppVersion, action, role) to payload schemas. A payload
// passes when it satisfies the compiled JSON schema file and the typed
// validator registered for the same key; either may be absent.
type Registry struct {
	mu         sync.RWMutex
	validators map[schemaKey]Validator
	schemas    map[schemaKey]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[schemaKey]Validator),
		schemas:    make(map[schemaKey]*jsonschema.Schema),
	}
}

// LoadSchemaFiles compiles every schema file under <version>/ in fsys.
// Files are keyed <version>/<action>(Request|Response).json, matching the
// upstream schema bundle layout.
func (r *Registry) LoadSchemaFiles(fsys fs.FS, version string) error {
	entries, err := fs.ReadDir(fsys, version)
	if err != nil {
		return fmt.Errorf("read schema dir %s: %w", version, err)
	}
	compiler := jsonschema.NewCompiler()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		var action string
		role := RoleRequest
		switch {
		case strings.HasSuffix(name, "Response"):
			action = strings.TrimSuffix(name, "Response")
			role = RoleResponse
		case strings.HasSuffix(name, "Request"):
			action = strings.TrimSuffix(name, "Request")
		default:
			return fmt.Errorf("schema file %s/%s is neither request nor response", version, e.Name())
		}

		p := path.Join(version, e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", p, err)
		}
		if err := compiler.AddResource(p, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("add schema %s: %w", p, err)
		}
		sch, err := compiler.Compile(p)
		if err != nil {
			return fmt.Errorf("compile schema %s: %w", p, err)
		}
		r.mu.Lock()
		r.schemas[schemaKey{version, action, role}] = sch
		r.mu.Unlock()
	}
	return nil
}

// Register installs a validator. Later registrations replace earlier ones.
func (r *Registry) Register(version, action string, role Role, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[schemaKey{version, action, role}] = v
}

// Known reports whether the action has a request schema for the version.
func (r *Registry) Known(version, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.validators[schemaKey{version, action, RoleRequest}]
	return ok
}

// Validate checks the payload. A missing schema is Unsupported; a failed
// check is SchemaError. The schema file runs first, then the typed check.
func (r *Registry) Validate(version, action string, role Role, payload json.RawMessage) error {
	key := schemaKey{version, action, role}
	r.mu.RLock()
	v, hasValidator := r.validators[key]
	sch := r.schemas[key]
	r.mu.RUnlock()

	if !hasValidator && sch == nil {
		return newDecodeError(Unsupported, "no %s schema for %s/%s", role, version, action)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if sch != nil {
		var doc interface{}
		if err := json.Unmarshal(payload, &doc); err != nil {
			return newDecodeError(SchemaError, "%s %s payload: %v", action, role, err)
		}
		if err := sch.Validate(doc); err != nil {
			return newDecodeError(SchemaError, "%s %s payload: %v", action, role, err)
		}
	}
	if hasValidator {
		if err := v(payload); err != nil {
			return newDecodeError(SchemaError, "%s %s payload: %v", action, role, err)
		}
	}
	return nil
}

// Typed builds a Validator that decodes strictly into T and then applies the
// optional semantic check.
func Typed[T any](check func(*T) error) Validator {
	return func(payload json.RawMessage) error {
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		var v T
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if check != nil {
			return check(&v)
		}
		return nil
	}
}

// NonEmpty is a reusable field check helper.
func NonEmpty(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// MaxLen bounds a string field.
func MaxLen(name, value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%s exceeds %d chars", name, max)
	}
	return nil
}
