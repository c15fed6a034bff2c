package hcl

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// ParseConfig decodes the HCL file at path into target, which must be a
// pointer to a struct carrying hcl tags. Expressions in the file can read the
// process environment as env.NAME and call the functions of hclFunctions.
func ParseConfig(path string, target any) error {

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Decode(src, path, target)
}

// Decode is ParseConfig on in-memory source. The filename is only used in
// diagnostics.
func Decode(src []byte, filename string, target any) error {

	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return fmt.Errorf("parse error: %s", diags.Error())
	}

	evalCtx, err := GenerateEvalContext(map[string]any{"env": environ()})
	if err != nil {
		return err
	}

	if diags := gohcl.DecodeBody(file.Body, evalCtx, target); diags.HasErrors() {
		return fmt.Errorf("decode error: %s", diags.Error())
	}

	return nil
}

func GenerateEvalContext(vars map[string]any) (*hcl.EvalContext, error) {
	ctx := &hcl.EvalContext{
		Variables: make(map[string]cty.Value),
		Functions: hclFunctions(),
	}

	if len(vars) == 0 {
		return ctx, nil
	}

	varValues := make(map[string]cty.Value)

	for k, v := range vars {
		ctyVal, err := toCtyValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert variable %q: %w", k, err)
		}
		varValues[k] = ctyVal
	}

	ctx.Variables = varValues

	return ctx, nil
}

func hclFunctions() map[string]function.Function {
	return map[string]function.Function{
		"coalesce":   stdlib.CoalesceFunc,
		"file":       fileFunc,
		"format":     stdlib.FormatFunc,
		"join":       stdlib.JoinFunc,
		"lower":      stdlib.LowerFunc,
		"replace":    stdlib.ReplaceFunc,
		"split":      stdlib.SplitFunc,
		"trimprefix": stdlib.TrimPrefixFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"trimsuffix": stdlib.TrimSuffixFunc,
		"upper":      stdlib.UpperFunc,
	}
}

// fileFunc reads a file, so secrets can be kept out of the config file.
// Trailing newlines are stripped.
var fileFunc = function.New(&function.Spec{
	Description: "Reads the contents of the file at the given path.",
	Params: []function.Parameter{
		{Name: "path", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		data, err := os.ReadFile(args[0].AsString())
		if err != nil {
			return cty.NilVal, err
		}
		return cty.StringVal(strings.TrimRight(string(data), "\r\n")), nil
	},
})

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
