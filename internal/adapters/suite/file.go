package suite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"fibbench/internal/bench"
	"fibbench/internal/coordinator"
)

// File 是 YAML 套件文件的结构。
type File struct {
	Tasks []FileTask `json:"tasks"`
}

// FileTask 是套件中的一条任务。
type FileTask struct {
	bench.Task
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LoadFile 读取并校验套件文件，缺失的任务 ID 以 uuid 补齐。
// 任务 ID 在清洗成 Kubernetes 名称后也必须唯一。
func LoadFile(path string) ([]coordinator.TaskRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	f, err := decodeFile(data)
	if err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("suite %s has no tasks", path)
	}

	seen := make(map[string]string, len(f.Tasks))
	out := make([]coordinator.TaskRequest, 0, len(f.Tasks))
	for i, ft := range f.Tasks {
		task := ft.Task
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		name := coordinator.SanitizeName(task.ID)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("suite %s: task id %q collides with %q (both map to %q)", path, task.ID, prev, name)
		}
		seen[name] = task.ID
		if err := task.Normalize(); err != nil {
			return nil, fmt.Errorf("suite %s: task %d (%s): %w", path, i, task.ID, err)
		}
		out = append(out, coordinator.TaskRequest{
			TaskID:         task.ID,
			Task:           task,
			ResultMetadata: ft.Metadata,
		})
	}
	return out, nil
}

// decodeFile 以 YAML 1.2 解析（n、y 等键保持为字符串，而不是 YAML 1.1 布尔值），
// 再经 JSON 严格解码，使字段名沿用 bench.Task 的 json 标签。
func decodeFile(data []byte) (File, error) {
	var f File
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return f, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return f, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return f, err
	}
	return f, nil
}

// NewFileClient 以套件文件中的任务构造客户端。
func NewFileClient(path string, log coordinator.Logger) (*PlaceholderClient, error) {
	tasks, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return newClient(tasks, log), nil
}
