package suite

import (
	"context"
	"sync"

	"fibbench/internal/bench"
	"fibbench/internal/coordinator"
)

// DefaultIterations 是内置套件每个任务的重复次数。
const DefaultIterations = 1_000_000

// PlaceholderClient 依次投递内置基准任务，随后阻塞等待取消。
type PlaceholderClient struct {
	tasks []coordinator.TaskRequest
	log   coordinator.Logger

	mu      sync.Mutex
	results []coordinator.TaskResult
}

// NewPlaceholderClient 构造内置套件：两种策略与两种后端，覆盖 F(46) 与首个溢出下标 48。
func NewPlaceholderClient(log coordinator.Logger) *PlaceholderClient {
	return newClient(DefaultTasks(), log)
}

// DefaultTasks 返回内置套件的任务列表。
func DefaultTasks() []coordinator.TaskRequest {
	mk := func(id, backend, policy string, n uint32, scenario string) coordinator.TaskRequest {
		return coordinator.TaskRequest{
			TaskID: id,
			Task: bench.Task{
				ID:         id,
				Backend:    backend,
				Policy:     policy,
				N:          n,
				Iterations: DefaultIterations,
			},
			ResultMetadata: map[string]string{
				"description": "built-in fibonacci benchmark task",
				"scenario":    scenario,
			},
		}
	}
	return []coordinator.TaskRequest{
		mk("native-wrap-46", bench.BackendNative, "wrap", 46, "baseline"),
		mk("native-checked-46", bench.BackendNative, "checked", 46, "checked-arithmetic"),
		mk("native-checked-48", bench.BackendNative, "checked", 48, "first-overflow"),
		mk("wasm-wrap-46", bench.BackendWasm, "wrap", 46, "sandbox"),
		mk("wasm-wrap-48", bench.BackendWasm, "wrap", 48, "sandbox-wraparound"),
	}
}

func newClient(tasks []coordinator.TaskRequest, log coordinator.Logger) *PlaceholderClient {
	if log == nil {
		log = coordinator.StdLogger{}
	}
	return &PlaceholderClient{tasks: tasks, log: log}
}

// SubscribeTasks 依次投递任务，全部投递后阻塞等待取消。
func (p *PlaceholderClient) SubscribeTasks(ctx context.Context, out chan<- coordinator.TaskRequest) error {
	for _, task := range p.tasks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- task:
			p.log.Infof("suite emitted task %s (scenario=%s)", task.TaskID, task.ResultMetadata["scenario"])
		}
	}

	p.log.Warnf("suite exhausted; awaiting cancellation")
	<-ctx.Done()
	return ctx.Err()
}

// AckTask 在日志中确认任务已被接收，便于追踪。
func (p *PlaceholderClient) AckTask(ctx context.Context, taskID string) error {
	p.log.Infof("ack task %s", taskID)
	return nil
}

// PublishResult 打印并记录任务结果。
func (p *PlaceholderClient) PublishResult(ctx context.Context, result coordinator.TaskResult) error {
	switch {
	case result.Success && result.Measurement != nil:
		m := result.Measurement
		p.log.Infof("task %s succeeded: F(%d)=%d backend=%s policy=%s iterations=%d ns/op=%.2f",
			result.TaskID, m.N, m.Result, m.Backend, m.Policy, m.Completed, m.NsPerOp)
	case result.Success:
		p.log.Infof("task %s succeeded without measurement", result.TaskID)
	default:
		p.log.Warnf("task %s failed: %v", result.TaskID, result.Error)
	}

	p.mu.Lock()
	p.results = append(p.results, result)
	p.mu.Unlock()
	return nil
}

// Results 返回已发布结果的副本。
func (p *PlaceholderClient) Results() []coordinator.TaskResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]coordinator.TaskResult(nil), p.results...)
}
