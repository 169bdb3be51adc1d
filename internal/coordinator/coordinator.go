package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fibbench/internal/bench"
	"fibbench/internal/report"
	"fibbench/internal/wasmfib"
)

// Coordinator 负责串联任务来源、模块拉取以及 Kubernetes 调度。
type Coordinator struct {
	cfg     Config
	suite   SuiteClient
	modules ModuleSource
	sched   Scheduler
	log     Logger
}

// NewCoordinator 使用外部依赖构建协调器实例。modules 可为空，此时 wasm 任务使用镜像内置模块。
func NewCoordinator(cfg Config, suite SuiteClient, modules ModuleSource, sched Scheduler) (*Coordinator, error) {
	if suite == nil {
		return nil, errors.New("suite client required")
	}
	if sched == nil {
		return nil, errors.New("scheduler required")
	}
	cfg.applyDefaults()
	return &Coordinator{
		cfg:     cfg,
		suite:   suite,
		modules: modules,
		sched:   sched,
		log:     defaultLogger(cfg.Log),
	}, nil
}

// Run 持续运行直至上下文取消或任务订阅结束。
func (c *Coordinator) Run(ctx context.Context) error {
	taskCh := make(chan TaskRequest)
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.suite.SubscribeTasks(ctx, taskCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.Errorf("task subscription failed: %v", err)
				return err
			}
			return nil
		case task := <-taskCh:
			c.processTask(ctx, task)
		}
	}
}

// processTask 负责单个基准任务的完整生命周期，从拉取模块到发布结果。
func (c *Coordinator) processTask(parent context.Context, task TaskRequest) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	c.log.Infof("processing task %s (backend=%s policy=%s n=%d)", task.TaskID, task.Task.Backend, task.Task.Policy, task.Task.N)

	if err := task.Task.Normalize(); err != nil {
		c.publishFailure(ctx, task, fmt.Errorf("invalid task: %w", err))
		return
	}

	if err := c.suite.AckTask(ctx, task.TaskID); err != nil {
		c.log.Warnf("ack task %s: %v", task.TaskID, err)
	}

	module, err := c.fetchModule(ctx, task)
	if err != nil {
		c.log.Errorf("fetch module for %s: %v", task.TaskID, err)
		c.publishFailure(ctx, task, fmt.Errorf("fetch module: %w", err))
		return
	}

	jobName, configMaps, err := c.sched.CreateJob(ctx, c.cfg, task, module)
	if err != nil {
		c.log.Errorf("create job for %s: %v", task.TaskID, err)
		c.publishFailure(ctx, task, fmt.Errorf("create job: %w", err))
		return
	}

	defer c.sched.DeleteArtifacts(context.Background(), jobName, configMaps...)

	job, err := c.sched.WaitForJob(ctx, jobName)
	if err != nil {
		c.log.Errorf("wait job %s: %v", jobName, err)
		c.publishFailure(ctx, task, fmt.Errorf("wait job: %w", err))
		return
	}

	logs, err := c.sched.FetchJobLogs(ctx, jobName)
	if err != nil {
		c.log.Warnf("fetch logs %s: %v", jobName, err)
	}

	result := TaskResult{
		TaskID:     task.TaskID,
		Success:    job.Status.Succeeded > 0,
		Logs:       logs,
		FinishedAt: time.Now(),
		Metadata:   task.ResultMetadata,
	}

	// 失败的 Job（例如 checked 策略溢出）同样会打印测量结果，尽量解析。
	if m, perr := report.DecodeJSON(extractOutputValue(logs)); perr == nil {
		result.Measurement = &m
	} else if result.Success {
		result.Success = false
		result.Error = perr
	}

	if job.Status.Succeeded == 0 {
		switch {
		case result.Measurement != nil && result.Measurement.Error != "":
			result.Error = fmt.Errorf("job failed: %s", result.Measurement.Error)
		case len(job.Status.Conditions) > 0:
			result.Error = fmt.Errorf("job failed: %s", job.Status.Conditions[0].Message)
		default:
			result.Error = fmt.Errorf("job failed without condition")
		}
	}

	if err := c.suite.PublishResult(ctx, result); err != nil {
		c.log.Errorf("publish result %s: %v", task.TaskID, err)
	}
}

// fetchModule 仅对指定了模块的 wasm 任务拉取并校验模块。
func (c *Coordinator) fetchModule(ctx context.Context, task TaskRequest) ([]byte, error) {
	if task.Task.Backend != bench.BackendWasm || task.Task.Module == "" {
		return nil, nil
	}
	if c.modules == nil {
		return nil, fmt.Errorf("module %s requested but no module source configured", task.Task.Module)
	}
	module, err := c.modules.FetchModule(ctx, task.Task.Module)
	if err != nil {
		return nil, err
	}
	if err := wasmfib.VerifyDigest(module, task.Task.Digest); err != nil {
		return nil, err
	}
	return module, nil
}

// publishFailure 在任务失败时上报错误结果。
func (c *Coordinator) publishFailure(ctx context.Context, task TaskRequest, err error) {
	res := TaskResult{
		TaskID:     task.TaskID,
		Success:    false,
		Error:      err,
		FinishedAt: time.Now(),
		Metadata:   task.ResultMetadata,
	}
	if pubErr := c.suite.PublishResult(ctx, res); pubErr != nil {
		c.log.Errorf("publish failure %s: %v", task.TaskID, pubErr)
	}
}

// extractOutputValue 从 Job 日志末尾筛选最后一条非空行。
func extractOutputValue(logs string) string {
	lines := strings.Split(logs, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return line
	}
	return ""
}
