package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fibbench/internal/bench"
)

func sample() bench.Measurement {
	return bench.Measurement{
		RunID:      "run-1",
		TaskID:     "native-46",
		Backend:    bench.BackendNative,
		Policy:     "wrap",
		N:          46,
		Result:     1836311903,
		Iterations: 10,
		Completed:  10,
		ElapsedNs:  1200,
		NsPerOp:    120,
		StartedAt:  time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	f, err = ParseFormat("CBOR")
	require.NoError(t, err)
	require.Equal(t, FormatCBOR, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}

func TestEncodeJSONFields(t *testing.T) {
	data, err := Encode(sample(), FormatJSON)
	require.NoError(t, err)
	require.Contains(t, string(data), `"result":1836311903`)
	require.Contains(t, string(data), `"backend":"native"`)
	require.NotContains(t, string(data), `"error"`)

	m, err := DecodeJSON("  " + string(data) + "\n")
	require.NoError(t, err)
	require.Equal(t, sample(), m)
}

func TestCBORIsSmallerThanJSON(t *testing.T) {
	j, err := Encode(sample(), FormatJSON)
	require.NoError(t, err)
	c, err := Encode(sample(), FormatCBOR)
	require.NoError(t, err)
	require.Less(t, len(c), len(j))

	m, err := Decode(c, FormatCBOR)
	require.NoError(t, err)
	require.Equal(t, uint32(1836311903), m.Result)
	require.Equal(t, "native-46", m.TaskID)
}

func TestDecodeJSONRejectsLogLine(t *testing.T) {
	_, err := DecodeJSON("2026/10/18 [INFO] done")
	require.ErrorContains(t, err, "parse measurement")
}

func TestWriteFileCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared", "nested", "result.json")
	require.NoError(t, WriteFile(path, []byte("{}\n")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{}\n", string(data))
}
