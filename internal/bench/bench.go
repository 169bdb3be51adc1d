// Package bench 以固定次数重复计算 F(n)，记录迭代循环的耗时。
package bench

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fibbench/internal/fibonacci"
)

// ErrNondeterministic 表示同一 n 的两次计算结果不同。
var ErrNondeterministic = errors.New("non-deterministic result")

// cancelCheckEvery 控制检查 ctx 的频率，避免每次迭代都产生开销。
const cancelCheckEvery = 1024

// Task 描述一次基准运行。
type Task struct {
	ID         string `json:"id,omitempty"`
	Backend    string `json:"backend"`
	Policy     string `json:"policy"`
	N          uint32 `json:"n"`
	Iterations int    `json:"iterations"`
	Entry      string `json:"entry,omitempty"`
	Module     string `json:"module,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// Normalize 填充默认值并校验名称。
func (t *Task) Normalize() error {
	t.Backend = strings.ToLower(strings.TrimSpace(t.Backend))
	if t.Backend == "" {
		t.Backend = BackendNative
	}
	if t.Backend != BackendNative && t.Backend != BackendWasm {
		return fmt.Errorf("%w %q", ErrUnknownBackend, t.Backend)
	}
	policy, err := fibonacci.ParsePolicy(t.Policy)
	if err != nil {
		return err
	}
	t.Policy = policy.String()
	if t.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative, got %d", t.Iterations)
	}
	if t.Iterations == 0 {
		t.Iterations = 1
	}
	return nil
}

// Measurement 是一次运行的结果。
type Measurement struct {
	RunID      string    `json:"run_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Backend    string    `json:"backend"`
	Policy     string    `json:"policy"`
	N          uint32    `json:"n"`
	Result     uint32    `json:"result"`
	Iterations int       `json:"iterations"`
	Completed  int       `json:"completed"`
	ElapsedNs  int64     `json:"elapsed_ns"`
	NsPerOp    float64   `json:"ns_per_op"`
	StartedAt  time.Time `json:"started_at"`
	Error      string    `json:"error,omitempty"`
}

// Elapsed 以 time.Duration 返回总耗时。
func (m Measurement) Elapsed() time.Duration { return time.Duration(m.ElapsedNs) }

// Run 调用 backend.Compute task.Iterations 次。计算错误（如溢出）立即终止，
// 不重试；返回的 Measurement 始终带有已完成部分的统计。
func Run(ctx context.Context, b Backend, task Task) (Measurement, error) {
	if err := task.Normalize(); err != nil {
		return Measurement{}, err
	}
	m := Measurement{
		RunID:      uuid.NewString(),
		TaskID:     task.ID,
		Backend:    b.Name(),
		Policy:     task.Policy,
		N:          task.N,
		Iterations: task.Iterations,
		StartedAt:  time.Now().UTC(),
	}

	start := time.Now()
	err := loop(ctx, b, task, &m)
	m.ElapsedNs = time.Since(start).Nanoseconds()
	if m.Completed > 0 {
		m.NsPerOp = float64(m.ElapsedNs) / float64(m.Completed)
	}
	if err != nil {
		m.Error = err.Error()
	}
	return m, err
}

func loop(ctx context.Context, b Backend, task Task, m *Measurement) error {
	for i := 0; i < task.Iterations; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		got, err := b.Compute(ctx, task.N)
		if err != nil {
			return err
		}
		if i == 0 {
			m.Result = got
		} else if got != m.Result {
			return fmt.Errorf("%w: F(%d) = %d, previously %d", ErrNondeterministic, task.N, got, m.Result)
		}
		m.Completed++
	}
	return nil
}
