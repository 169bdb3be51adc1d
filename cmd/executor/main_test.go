package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fibbench/internal/report"
	"fibbench/internal/wasmfib"
)

func envFrom(m map[string]string) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := m[key]; ok {
			return v
		}
		return def
	}
}

func testConfig(t *testing.T, env map[string]string) executorConfig {
	t.Helper()
	dir := t.TempDir()
	if _, ok := env["OUTPUT_PATH"]; !ok {
		env["OUTPUT_PATH"] = filepath.Join(dir, "out", "result")
	}
	if _, ok := env["INPUT_PATH"]; !ok {
		env["INPUT_PATH"] = filepath.Join(dir, "absent.json")
	}
	cfg, err := loadConfig(envFrom(env))
	require.NoError(t, err)
	return cfg
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(envFrom(map[string]string{}))
	require.NoError(t, err)
	require.Equal(t, uint32(46), cfg.task.N)
	require.Equal(t, 1, cfg.task.Iterations)
	require.Equal(t, "native", cfg.task.Backend)
	require.Equal(t, "json", cfg.outputFormat)

	_, err = loadConfig(envFrom(map[string]string{"FIB_N": "4294967296"}))
	require.ErrorContains(t, err, "FIB_N")
	_, err = loadConfig(envFrom(map[string]string{"FIB_ITERATIONS": "many"}))
	require.ErrorContains(t, err, "FIB_ITERATIONS")
}

func TestExecuteNativeDefault(t *testing.T) {
	cfg := testConfig(t, map[string]string{"FIB_ITERATIONS": "100"})
	var stdout bytes.Buffer
	require.Equal(t, 0, execute(context.Background(), cfg, &stdout, quietLogger()))

	m, err := report.DecodeJSON(stdout.String())
	require.NoError(t, err)
	require.Equal(t, uint32(1836311903), m.Result)
	require.Equal(t, 100, m.Completed)

	data, err := os.ReadFile(cfg.outputPath)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestExecuteInputOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"id":"from-input","backend":"wasm","policy":"wrap","n":48,"iterations":3}`), 0o644))
	cfg := testConfig(t, map[string]string{"INPUT_PATH": input, "FIB_N": "10", "OUTPUT_FORMAT": "cbor"})

	var stdout bytes.Buffer
	require.Equal(t, 0, execute(context.Background(), cfg, &stdout, quietLogger()))

	m, err := report.DecodeJSON(stdout.String())
	require.NoError(t, err)
	require.Equal(t, "from-input", m.TaskID)
	require.Equal(t, "wasm", m.Backend)
	require.Equal(t, uint32(512559680), m.Result)

	data, err := os.ReadFile(cfg.outputPath)
	require.NoError(t, err)
	fromFile, err := report.Decode(data, report.FormatCBOR)
	require.NoError(t, err)
	require.Equal(t, m.RunID, fromFile.RunID)
}

func TestExecuteCheckedOverflowExitsNonZero(t *testing.T) {
	cfg := testConfig(t, map[string]string{"FIB_POLICY": "checked", "FIB_N": "48"})
	var stdout bytes.Buffer
	require.Equal(t, 1, execute(context.Background(), cfg, &stdout, quietLogger()))

	m, err := report.DecodeJSON(stdout.String())
	require.NoError(t, err)
	require.Contains(t, m.Error, "overflows uint32")
	require.Zero(t, m.Completed)
}

func TestExecuteExternalModuleDigest(t *testing.T) {
	dir := t.TempDir()
	wasmPath := filepath.Join(dir, "module.wasm")
	bin := wasmfib.Module()
	require.NoError(t, os.WriteFile(wasmPath, bin, 0o644))

	cfg := testConfig(t, map[string]string{
		"WASM_PATH":     wasmPath,
		"MODULE_DIGEST": wasmfib.Digest(bin),
		"FIB_BACKEND":   "wasm",
	})
	var stdout bytes.Buffer
	require.Equal(t, 0, execute(context.Background(), cfg, &stdout, quietLogger()))

	cfg.moduleDigest = wasmfib.Digest([]byte("tampered"))
	stdout.Reset()
	require.Equal(t, 2, execute(context.Background(), cfg, &stdout, quietLogger()))
	require.Empty(t, stdout.String())
}

func TestExecuteRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"n":`), 0o644))
	cfg := testConfig(t, map[string]string{"INPUT_PATH": input})
	require.Equal(t, 2, execute(context.Background(), cfg, io.Discard, quietLogger()))

	cfg = testConfig(t, map[string]string{"FIB_BACKEND": "wasm", "FIB_POLICY": "checked"})
	require.Equal(t, 2, execute(context.Background(), cfg, io.Discard, quietLogger()))
}
