package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE []byte

// Error codes for LoadError.
const (
	ErrCodeRead   = "E_CONFIG_READ"
	ErrCodeYAML   = "E_CONFIG_YAML"
	ErrCodeSchema = "E_CONFIG_SCHEMA"
	ErrCodeScript = "E_CONFIG_SCRIPT"
)

// Document is the top level of a configuration file.
type Document struct {
	Config  Config  `yaml:"config"`
	Options Options `yaml:"options"`
}

// LoadError reports a configuration file problem. Path is the dotted field
// path when the problem is tied to one field.
type LoadError struct {
	Code    string
	File    string
	Path    string
	Line    int
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Code)
	b.WriteString(": ")
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// LoadFile reads and validates a configuration file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, File: path, Message: err.Error(), Err: err}
	}
	return Parse(data, path)
}

// Parse validates data against the schema, decodes it strictly and
// compiles its scripts. filename is only used in errors.
func Parse(data []byte, filename string) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{Code: ErrCodeYAML, File: filename, Message: err.Error(), Err: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateSchema(raw, filename); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Code: ErrCodeYAML, File: filename, Message: err.Error(), Err: err}
	}

	if err := doc.Config.CompileScripts(); err != nil {
		return nil, &LoadError{Code: ErrCodeScript, File: filename, Path: "config", Message: err.Error(), Err: err}
	}
	return &doc, nil
}

func validateSchema(raw any, filename string) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	data := ctx.Encode(raw)
	if err := data.Err(); err != nil {
		return &LoadError{Code: ErrCodeSchema, File: filename, Message: err.Error(), Err: err}
	}

	doc := schema.LookupPath(cue.ParsePath("#Document")).Unify(data)
	if err := doc.Validate(cue.Concrete(true)); err != nil {
		return schemaError(err, filename)
	}
	return nil
}

// schemaError reports the first CUE error with its field path.
func schemaError(err error, filename string) error {
	le := &LoadError{Code: ErrCodeSchema, File: filename, Message: err.Error(), Err: err}
	if list := cueerrors.Errors(err); len(list) > 0 {
		first := list[0]
		le.Path = strings.Join(first.Path(), ".")
		format, args := first.Msg()
		le.Message = fmt.Sprintf(format, args...)
	}
	return le
}
