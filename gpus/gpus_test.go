package gpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{"nodes": [
  {"name": "erc-hpc-vm013", "partitions": ["gpu"], "active_features": ["icelake", "a100", "a100_80g"],
   "tres": "cpu=10,mem=117000M,billing=10,gres/gpu=1", "tres_used": "cpu=1,gres/gpu=1"},
  {"name": "erc-hpc-vm014", "partitions": ["gpu"], "active_features": ["icelake", "a100", "a100_80g"],
   "tres": "cpu=10,gres/gpu=2", "tres_used": "cpu=0"},
  {"name": "erc-hpc-comp1", "partitions": ["interruptible_gpu", "gpu"], "active_features": ["h100", "ib"],
   "tres": "cpu=124,gres/gpu=4", "tres_used": "cpu=6,gres/gpu=3"},
  {"name": "erc-hpc-comp2", "partitions": ["cpu"], "active_features": ["skylake", "ib"],
   "tres": "cpu=64", "tres_used": "cpu=64"},
  {"name": "login", "partitions": ["gpu"], "active_features": ["icelake"], "tres": "gres/gpu=8", "tres_used": ""},
  {"name": "orphan", "partitions": [], "active_features": ["x", "t4"], "tres": "gres/gpu=1", "tres_used": ""}
]}`

type fakeRunner struct {
	stdout string
	err    error
	args   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdout, _ io.Writer) error {
	f.args = append([]string{name}, args...)
	_, _ = io.WriteString(stdout, f.stdout)
	return f.err
}

func TestModel(t *testing.T) {
	testCases := []struct {
		features []string
		gpu      string
		ok       bool
	}{
		{[]string{"icelake", "a100", "a100_80g"}, "a100_80g", true},
		{[]string{"h100", "ib"}, "ib", true},
		{[]string{"amd", "h100", "ib"}, "h100", true},
		{[]string{"icelake"}, "", false},
		{nil, "", false},
	}
	for _, tc := range testCases {
		gpu, ok := Node{ActiveFeatures: tc.features}.Model()
		assert.Equal(t, tc.gpu, gpu, tc.features)
		assert.Equal(t, tc.ok, ok, tc.features)
	}
}

func TestCollectAndAggregate(t *testing.T) {
	runner := &fakeRunner{stdout: sample}
	nodes, err := Collect(context.Background(), runner)
	require.NoError(t, err)
	assert.Equal(t, []string{"scontrol", "show", "nodes", "--json"}, runner.args)
	require.Len(t, nodes, 6)

	stats := Aggregate(nodes)
	assert.Equal(t, []string{"a100_80g", "ib"}, stats.Models())

	a100 := stats["a100_80g"]["gpu"]
	require.NotNil(t, a100)
	assert.Equal(t, 3, a100.Count)
	assert.Equal(t, 1, a100.Used)
	assert.Equal(t, 2, a100.Left)
	assert.Equal(t, []string{"erc-hpc-vm013"}, a100.UsedNodes)
	assert.Equal(t, []string{"erc-hpc-vm014"}, a100.LeftNodes)

	ib := stats["ib"]
	assert.Equal(t, 4, ib["interruptible_gpu"].Count)
	assert.Equal(t, 1, ib["interruptible_gpu"].Left)
	assert.Equal(t, 0, ib["cpu"].Count)

	assert.Equal(t, []string{"gpu", "interruptible_gpu"}, stats.Partitions())
}

func TestCollect_Errors(t *testing.T) {
	_, err := Collect(context.Background(), &fakeRunner{err: errors.New("not found")})
	assert.Error(t, err)

	_, err = Collect(context.Background(), &fakeRunner{stdout: "not json"})
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestRender(t *testing.T) {
	nodes, err := Parse([]byte(sample))
	require.NoError(t, err)
	var buf bytes.Buffer
	Render(&buf, Aggregate(nodes))
	out := buf.String()

	assert.Contains(t, out, "GPU")
	assert.Contains(t, out, "left (gpu)")
	assert.Contains(t, out, "max (gpu)")
	assert.Contains(t, out, "left (int)")
	assert.NotContains(t, out, "(cpu)")
	assert.Less(t, strings.Index(out, "a100_80g"), strings.Index(out, "ib"))
}

func TestOnlyAndJSON(t *testing.T) {
	nodes, err := Parse([]byte(sample))
	require.NoError(t, err)
	stats := Aggregate(nodes)

	_, err = stats.Only("v100")
	assert.ErrorIs(t, err, ErrUnknownGPU)

	only, err := stats.Only("a100_80g")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, only))

	var decoded map[string]map[string]Group
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded["a100_80g"]["gpu"].Count)
	assert.Len(t, decoded, 1)
}
