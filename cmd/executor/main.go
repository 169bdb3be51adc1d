// Command executor 在 Job Pod 中运行单个基准任务，写出报告并把 JSON 结果打印为 stdout 末行。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"fibbench/internal/bench"
	"fibbench/internal/report"
	"fibbench/internal/wasmfib"
)

type executorConfig struct {
	wasmPath     string
	moduleDigest string
	outputPath   string
	outputFormat string
	inputPath    string
	task         bench.Task
}

func getenvOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	cfg, err := loadConfig(getenvOr)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	os.Exit(execute(ctx, cfg, os.Stdout, logger))
}

// execute 运行任务并返回进程退出码。计算失败时仍会写出带 error 字段的报告。
func execute(ctx context.Context, cfg executorConfig, stdout io.Writer, logger *log.Logger) int {
	task, err := resolveTask(cfg)
	if err != nil {
		logger.Printf("[ERROR] resolve task: %v", err)
		return 2
	}
	format, err := report.ParseFormat(cfg.outputFormat)
	if err != nil {
		logger.Printf("[ERROR] %v", err)
		return 2
	}

	module, err := loadModule(cfg)
	if err != nil {
		logger.Printf("[ERROR] load module: %v", err)
		return 2
	}

	backend, err := bench.NewBackend(ctx, task, module)
	if err != nil {
		logger.Printf("[ERROR] backend: %v", err)
		return 2
	}
	defer backend.Close(ctx)

	logger.Printf("[INFO] running task=%s backend=%s policy=%s n=%d iterations=%d",
		task.ID, task.Backend, task.Policy, task.N, task.Iterations)
	m, runErr := bench.Run(ctx, backend, task)
	if runErr != nil {
		logger.Printf("[ERROR] run: %v", runErr)
	} else {
		logger.Printf("[INFO] F(%d)=%d in %s (%.2f ns/op)", m.N, m.Result, m.Elapsed(), m.NsPerOp)
	}

	if err := writeOutput(cfg.outputPath, format, m, stdout); err != nil {
		logger.Printf("[ERROR] write output: %v", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func loadConfig(env func(key, def string) string) (executorConfig, error) {
	cfg := executorConfig{
		wasmPath:     env("WASM_PATH", ""),
		moduleDigest: env("MODULE_DIGEST", ""),
		outputPath:   env("OUTPUT_PATH", "host/shared/result"),
		outputFormat: env("OUTPUT_FORMAT", string(report.FormatJSON)),
		inputPath:    env("INPUT_PATH", "/mnt/input/input.json"),
		task: bench.Task{
			ID:      env("TASK_ID", ""),
			Backend: env("FIB_BACKEND", bench.BackendNative),
			Policy:  env("FIB_POLICY", "wrap"),
			Entry:   env("ENTRY", ""),
		},
	}
	n, err := strconv.ParseUint(env("FIB_N", "46"), 10, 32)
	if err != nil {
		return cfg, fmt.Errorf("invalid FIB_N: %w", err)
	}
	cfg.task.N = uint32(n)
	iterations, err := strconv.Atoi(env("FIB_ITERATIONS", "1"))
	if err != nil {
		return cfg, fmt.Errorf("invalid FIB_ITERATIONS: %w", err)
	}
	cfg.task.Iterations = iterations
	return cfg, nil
}

// resolveTask 以 input.json 覆盖环境变量中的任务定义。
func resolveTask(cfg executorConfig) (bench.Task, error) {
	task := cfg.task
	if err := readInputSpec(cfg.inputPath, &task); err != nil {
		return task, err
	}
	if err := task.Normalize(); err != nil {
		return task, err
	}
	return task, nil
}

func readInputSpec(path string, task *bench.Task) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(content), task); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadModule 读取外部 wasm 模块并校验摘要；未配置时返回 nil，使用内置模块。
func loadModule(cfg executorConfig) ([]byte, error) {
	if cfg.wasmPath == "" {
		return nil, nil
	}
	bin, err := os.ReadFile(cfg.wasmPath)
	if err != nil {
		return nil, fmt.Errorf("read wasm from %s: %w", cfg.wasmPath, err)
	}
	if err := wasmfib.VerifyDigest(bin, cfg.moduleDigest); err != nil {
		return nil, err
	}
	return bin, nil
}

// writeOutput 按格式写报告文件，并始终在 stdout 打印一行 JSON 供协调器解析。
func writeOutput(path string, format report.Format, m bench.Measurement, stdout io.Writer) error {
	payload, err := report.Encode(m, format)
	if err != nil {
		return err
	}
	if format == report.FormatJSON {
		payload = append(payload, '\n')
	}
	if path != "" {
		if err := report.WriteFile(path, payload); err != nil {
			return err
		}
	}
	line, err := report.Encode(m, report.FormatJSON)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(line))
	return err
}
