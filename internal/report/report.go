// Package report 负责 Measurement 的序列化与落盘。
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"fibbench/internal/bench"
)

// Format 是报告文件的编码格式。
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat 解析格式名，空字符串视为 json。
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Encode 按格式编码一次测量结果。
func Encode(m bench.Measurement, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.Marshal(m)
	case FormatCBOR:
		return cbor.Marshal(m)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Decode 按格式解码报告。
func Decode(data []byte, format Format) (bench.Measurement, error) {
	var m bench.Measurement
	var err error
	switch format {
	case FormatJSON, "":
		err = json.Unmarshal(data, &m)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &m)
	default:
		err = fmt.Errorf("unknown report format %q", format)
	}
	return m, err
}

// DecodeJSON 解析 executor 打印在 stdout 末行的 JSON。
func DecodeJSON(line string) (bench.Measurement, error) {
	m, err := Decode([]byte(strings.TrimSpace(line)), FormatJSON)
	if err != nil {
		return m, fmt.Errorf("parse measurement: %w", err)
	}
	return m, nil
}

// WriteFile 写入报告，必要时创建父目录。
func WriteFile(path string, payload []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, payload, 0o644)
}
