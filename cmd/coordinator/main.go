package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fibbench/internal/adapters/module"
	"fibbench/internal/adapters/suite"
	"fibbench/internal/coordinator"
)

// main 将配置 Config、任务套件、模块来源与协调器 Coordinator 事件循环串联起来。
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	logAdapter := coordinator.NewStdLogger(logger)

	cfg := coordinator.Config{
		Namespace:     envOr("COORDINATOR_NAMESPACE", "default"),
		ExecutorImage: envOr("COORDINATOR_EXECUTOR_IMAGE", "fibbench/executor:dev"),
		JobTemplate:   envOr("COORDINATOR_JOB_TEMPLATE", "k8s/job.yaml"),
		Log:           logAdapter,
	}
	if v := envOr("COORDINATOR_POLL_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Fatalf("invalid COORDINATOR_POLL_INTERVAL=%q: %v", v, err)
		}
		cfg.PollInterval = d
	}

	kube, err := coordinator.NewKubeManager(cfg.Namespace, cfg.Log)
	if err != nil {
		logger.Fatalf("kube manager: %v", err)
	}
	kube.SetPollInterval(cfg.PollInterval)
	if err := kube.LoadTemplate(cfg.JobTemplate); err != nil {
		logger.Fatalf("job template: %v", err)
	}

	var modules coordinator.ModuleSource
	if endpoint := envOr("COORDINATOR_MODULE_ENDPOINT", ""); endpoint != "" {
		src, err := module.NewGatewaySource(endpoint, cfg.Log)
		if err != nil {
			logger.Fatalf("module gateway: %v", err)
		}
		modules = src
		logger.Printf("[INFO] using module gateway %s", endpoint)
	} else if dir := envOr("COORDINATOR_MODULE_DIR", ""); dir != "" {
		modules = module.NewDirSource(dir, cfg.Log)
		logger.Printf("[INFO] using local module directory %s", dir)
	}

	var tasks coordinator.SuiteClient
	if path := envOr("COORDINATOR_SUITE", ""); path != "" {
		client, err := suite.NewFileClient(path, cfg.Log)
		if err != nil {
			logger.Fatalf("suite: %v", err)
		}
		tasks = client
		logger.Printf("[INFO] using suite file %s", path)
	} else {
		tasks = suite.NewPlaceholderClient(cfg.Log)
		logger.Printf("[INFO] using built-in suite")
	}

	service, err := coordinator.NewCoordinator(cfg, tasks, modules, kube)
	if err != nil {
		logger.Fatalf("coordinator: %v", err)
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("run: %v", err)
	}
}

// envOr 读取环境变量，当变量不存在时返回默认值。
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
