// Package module 提供 wasm 模块来源：本地目录与 HTTP 网关。
package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fibbench/internal/coordinator"
)

// DirSource 从本地目录读取与引用同名的 wasm 模块。
type DirSource struct {
	Dir string
	log coordinator.Logger
}

// NewDirSource 创建基于本地文件的模块来源。
func NewDirSource(dir string, log coordinator.Logger) *DirSource {
	if log == nil {
		log = coordinator.StdLogger{}
	}
	return &DirSource{Dir: dir, log: log}
}

// FetchModule 从磁盘加载模块字节，拒绝跳出目录的引用。
func (d *DirSource) FetchModule(ctx context.Context, ref string) ([]byte, error) {
	if d.Dir == "" {
		return nil, fmt.Errorf("module directory not configured")
	}
	if ref == "" {
		return nil, fmt.Errorf("empty module ref")
	}
	if !filepath.IsLocal(ref) {
		return nil, fmt.Errorf("module ref %q escapes %s", ref, d.Dir)
	}
	path := filepath.Join(d.Dir, ref)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", path, err)
	}
	d.log.Infof("loaded wasm module %s (%d bytes)", strings.TrimSpace(ref), len(data))
	return data, nil
}
