package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidthor/platctl/pkg/errors"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Loader reads deployment requests from files.
type Loader interface {
	// Load parses and validates the request at path.
	Load(path string) (*Request, error)

	// LoadFromBytes parses and validates a request. The source path selects
	// the format: .hcl is HCL, anything else is YAML (JSON included).
	LoadFromBytes(data []byte, sourcePath string) (*Request, error)
}

type fileLoader struct {
	env map[string]string
}

// NewLoader creates a loader whose HCL files see the process environment as
// the env object.
func NewLoader() Loader {
	return NewLoaderWithEnv(environ())
}

// NewLoaderWithEnv creates a loader with an explicit env object for HCL files.
func NewLoaderWithEnv(env map[string]string) Loader {
	return &fileLoader{env: env}
}

func (l *fileLoader) Load(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", path), err)
	}
	return l.LoadFromBytes(data, path)
}

func (l *fileLoader) LoadFromBytes(data []byte, sourcePath string) (*Request, error) {
	var (
		req *Request
		err error
	)
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".hcl":
		req, err = l.parseHCL(data, sourcePath)
	default:
		req, err = parseYAML(data)
	}
	if err != nil {
		return nil, errors.ParseError(sourcePath, err)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func parseYAML(data []byte) (*Request, error) {
	var req Request
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (l *fileLoader) parseHCL(data []byte, filename string) (*Request, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var req Request
	if diags := gohcl.DecodeBody(file.Body, l.evalContext(), &req); diags.HasErrors() {
		return nil, diags
	}
	return &req, nil
}

func (l *fileLoader) evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(l.env))
	for k, v := range l.env {
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}
