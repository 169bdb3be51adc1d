package coordinator

import (
	"context"
	"time"

	batchv1 "k8s.io/api/batch/v1"

	"fibbench/internal/bench"
)

// TaskRequest 表示一次待调度的基准任务。
type TaskRequest struct {
	TaskID         string
	Task           bench.Task
	ResultMetadata map[string]string
}

// TaskResult 描述任务执行结果。
type TaskResult struct {
	TaskID      string
	Success     bool
	Measurement *bench.Measurement
	Logs        string
	FinishedAt  time.Time
	Error       error
	Metadata    map[string]string
}

// SuiteClient 抽象任务来源与结果上报。
type SuiteClient interface {
	SubscribeTasks(ctx context.Context, out chan<- TaskRequest) error
	AckTask(ctx context.Context, taskID string) error
	PublishResult(ctx context.Context, result TaskResult) error
}

// ModuleSource 抽象 wasm 模块下载。
type ModuleSource interface {
	FetchModule(ctx context.Context, ref string) ([]byte, error)
}

// Scheduler 抽象 Job 的创建、等待、日志与清理，KubeManager 为其实现。
type Scheduler interface {
	CreateJob(ctx context.Context, cfg Config, task TaskRequest, module []byte) (string, []string, error)
	WaitForJob(ctx context.Context, jobName string) (*batchv1.Job, error)
	FetchJobLogs(ctx context.Context, jobName string) (string, error)
	DeleteArtifacts(ctx context.Context, jobName string, configMaps ...string)
}

// Logger 提供基础日志输出。
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
