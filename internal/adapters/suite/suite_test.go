package suite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"fibbench/internal/bench"
	"fibbench/internal/coordinator"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

func writeSuite(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultTasksCoverOverflowBoundary(t *testing.T) {
	tasks := DefaultTasks()
	require.Len(t, tasks, 5)
	var sawChecked48, sawWasm bool
	for _, task := range tasks {
		require.NoError(t, task.Task.Normalize())
		require.Equal(t, task.TaskID, task.Task.ID)
		if task.Task.Policy == "checked" && task.Task.N == 48 {
			sawChecked48 = true
		}
		if task.Task.Backend == bench.BackendWasm {
			require.Equal(t, "wrap", task.Task.Policy)
			sawWasm = true
		}
	}
	require.True(t, sawChecked48)
	require.True(t, sawWasm)
}

func TestPlaceholderSubscribeEmitsThenBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPlaceholderClient(nopLogger{})

	out := make(chan coordinator.TaskRequest)
	errCh := make(chan error, 1)
	go func() { errCh <- p.SubscribeTasks(ctx, out) }()

	for i := 0; i < len(DefaultTasks()); i++ {
		select {
		case <-out:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for task")
		}
	}

	select {
	case err := <-errCh:
		t.Fatalf("subscription ended early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestPublishResultRecords(t *testing.T) {
	p := NewPlaceholderClient(nopLogger{})
	ctx := context.Background()
	require.NoError(t, p.AckTask(ctx, "a"))
	require.NoError(t, p.PublishResult(ctx, coordinator.TaskResult{
		TaskID:      "a",
		Success:     true,
		Measurement: &bench.Measurement{N: 46, Result: 1836311903},
	}))
	require.NoError(t, p.PublishResult(ctx, coordinator.TaskResult{TaskID: "b", Error: errors.New("boom")}))

	results := p.Results()
	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
}

func TestLoadFile(t *testing.T) {
	path := writeSuite(t, `
tasks:
  - id: quick
    n: 46
    iterations: 10
    metadata:
      owner: perf
  - backend: wasm
    n: 48
    module: fib.wasm
    digest: "0xabc"
  - id: checked
    policy: checked
    n: 47
`)
	tasks, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	require.Equal(t, "quick", tasks[0].TaskID)
	require.Equal(t, bench.BackendNative, tasks[0].Task.Backend)
	require.Equal(t, "wrap", tasks[0].Task.Policy)
	require.Equal(t, 10, tasks[0].Task.Iterations)
	require.Equal(t, "perf", tasks[0].ResultMetadata["owner"])
	require.Equal(t, uint32(46), tasks[0].Task.N)

	_, err = uuid.Parse(tasks[1].TaskID)
	require.NoError(t, err)
	require.Equal(t, tasks[1].TaskID, tasks[1].Task.ID)
	require.Equal(t, "fib.wasm", tasks[1].Task.Module)
	require.Equal(t, "0xabc", tasks[1].Task.Digest)
	require.Equal(t, 1, tasks[1].Task.Iterations)
	require.Equal(t, uint32(48), tasks[1].Task.N)

	require.Equal(t, "checked", tasks[2].Task.Policy)
	require.Equal(t, uint32(47), tasks[2].Task.N)
}

func TestLoadFileKeepsYAML11BooleanWordsAsKeys(t *testing.T) {
	// n、y、on 在 YAML 1.1 中是布尔值；套件按 YAML 1.2 解析。
	tasks, err := LoadFile(writeSuite(t, "tasks:\n  - id: a\n    n: 30\n    metadata:\n      y: yes\n      on: off\n"))
	require.NoError(t, err)
	require.Equal(t, uint32(30), tasks[0].Task.N)
	require.Equal(t, "yes", tasks[0].ResultMetadata["y"])
	require.Equal(t, "off", tasks[0].ResultMetadata["on"])
}

func TestLoadShippedSuite(t *testing.T) {
	tasks, err := LoadFile(filepath.Join("..", "..", "..", "k8s", "suite.yaml"))
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	want := []struct {
		id, backend, policy string
		n                   uint32
	}{
		{"native-wrap-46", bench.BackendNative, "wrap", 46},
		{"native-checked-48", bench.BackendNative, "checked", 48},
		{"wasm-builtin-46", bench.BackendWasm, "wrap", 46},
		{"wasm-tinygo-46", bench.BackendWasm, "wrap", 46},
	}
	for i, w := range want {
		require.Equal(t, w.id, tasks[i].TaskID)
		require.Equal(t, w.backend, tasks[i].Task.Backend, w.id)
		require.Equal(t, w.policy, tasks[i].Task.Policy, w.id)
		require.Equal(t, w.n, tasks[i].Task.N, w.id)
	}
	require.Equal(t, "fib.wasm", tasks[3].Task.Module)
	require.Equal(t, "first-overflow", tasks[1].ResultMetadata["scenario"])
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read suite")

	_, err = LoadFile(writeSuite(t, "tasks: []\n"))
	require.ErrorContains(t, err, "no tasks")

	_, err = LoadFile(writeSuite(t, "tasks:\n  - n: 1\n    colour: red\n"))
	require.ErrorContains(t, err, "parse suite")

	_, err = LoadFile(writeSuite(t, "tasks:\n  - id: a\n  - id: a\n"))
	require.ErrorContains(t, err, "collides with")

	// 两个 ID 清洗后得到同一个 Job 名称。
	_, err = LoadFile(writeSuite(t, "tasks:\n  - id: Task_A\n  - id: task-a\n"))
	require.ErrorContains(t, err, `both map to "task-a"`)

	_, err = LoadFile(writeSuite(t, "tasks:\n  - n: 4294967296\n"))
	require.ErrorContains(t, err, "parse suite")

	_, err = LoadFile(writeSuite(t, "tasks:\n  - backend: gpu\n"))
	require.ErrorIs(t, err, bench.ErrUnknownBackend)
}

func TestNewFileClient(t *testing.T) {
	p, err := NewFileClient(writeSuite(t, "tasks:\n  - id: one\n    n: 10\n"), nopLogger{})
	require.NoError(t, err)
	require.Len(t, p.tasks, 1)
	require.Equal(t, uint32(10), p.tasks[0].Task.N)
}
