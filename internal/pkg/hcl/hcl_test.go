package hcl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type testConfig struct {
	Name    string   `hcl:"name"`
	Secret  string   `hcl:"secret,optional"`
	Crons   []string `hcl:"crons,optional"`
	Counter int      `hcl:"counter,optional"`
}

func TestDecode(t *testing.T) {
	t.Setenv("BUILD_TRIGGER_TEST_SECRET", "  hunter2  ")

	src := []byte(`
name    = upper("app")
secret  = trimspace(env.BUILD_TRIGGER_TEST_SECRET)
crons   = split(",", "0 * * * *,30 * * * *")
counter = 3
`)

	var cfg testConfig
	require.NoError(t, Decode(src, "test.hcl", &cfg))

	assert.Equal(t, "APP", cfg.Name)
	assert.Equal(t, "hunter2", cfg.Secret)
	assert.Equal(t, []string{"0 * * * *", "30 * * * *"}, cfg.Crons)
	assert.Equal(t, 3, cfg.Counter)
}

func TestDecode_Errors(t *testing.T) {
	var cfg testConfig

	err := Decode([]byte(`name = `), "test.hcl", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")

	err = Decode([]byte(`counter = 1`), "test.hcl", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode error")

	err = Decode([]byte(`name = env.BUILD_TRIGGER_TEST_DOES_NOT_EXIST`), "test.hcl", &cfg)
	require.Error(t, err)
}

func TestParseConfig_File(t *testing.T) {
	dir := t.TempDir()

	secretPath := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("s3cr3t\n"), 0o600))

	cfgPath := filepath.Join(dir, "config.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
name   = "app"
secret = file("`+filepath.ToSlash(secretPath)+`")
`), 0o600))

	var cfg testConfig
	require.NoError(t, ParseConfig(cfgPath, &cfg))
	assert.Equal(t, "s3cr3t", cfg.Secret)

	require.Error(t, ParseConfig(filepath.Join(dir, "missing.hcl"), &cfg))
}

func TestToCtyValue(t *testing.T) {
	val, err := toCtyValue(map[string]any{
		"name":  "app",
		"count": 2,
		"tags":  []string{"a"},
		"flags": []any{true},
	})
	require.NoError(t, err)

	assert.True(t, val.GetAttr("name").RawEquals(cty.StringVal("app")))
	assert.True(t, val.GetAttr("count").RawEquals(cty.NumberIntVal(2)))
	assert.True(t, val.GetAttr("tags").RawEquals(cty.ListVal([]cty.Value{cty.StringVal("a")})))
	assert.True(t, val.GetAttr("flags").RawEquals(cty.TupleVal([]cty.Value{cty.True})))

	empty, err := toCtyValue(map[string]any{})
	require.NoError(t, err)
	assert.True(t, empty.RawEquals(cty.EmptyObjectVal))

	_, err = toCtyValue(map[string]any{"ch": make(chan int)})
	require.ErrorContains(t, err, `attribute "ch"`)
}
