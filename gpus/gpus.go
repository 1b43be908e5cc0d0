// Package gpus summarises GPU availability on a Slurm cluster from
// `scontrol show nodes --json`.
package gpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ExcludedPartition is left out of the table.
const ExcludedPartition = "cpu"

var (
	ErrParseFailed = errors.New("cannot parse scontrol output")
	ErrUnknownGPU  = errors.New("unknown gpu")

	gpuTresRegex = regexp.MustCompile(`gres/gpu=(\d+)`)
)

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

type Node struct {
	Name           string   `json:"name"`
	Partitions     []string `json:"partitions"`
	ActiveFeatures []string `json:"active_features"`
	Tres           string   `json:"tres"`
	TresUsed       string   `json:"tres_used"`
}

type nodesDoc struct {
	Nodes []Node `json:"nodes"`
}

// Group counts the GPUs of one model in one partition.
type Group struct {
	Count     int      `json:"count"`
	Used      int      `json:"used"`
	Left      int      `json:"left"`
	UsedNodes []string `json:"used_nodes"`
	LeftNodes []string `json:"left_nodes"`
}

// Stats maps a GPU model to its groups by partition.
type Stats map[string]map[string]*Group

// Collect runs scontrol and parses its output.
func Collect(ctx context.Context, runner Runner) ([]Node, error) {
	var stdout, stderr bytes.Buffer
	if err := runner.Run(ctx, "scontrol", []string{"show", "nodes", "--json"}, &stdout, &stderr); err != nil {
		return nil, fmt.Errorf("scontrol: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return Parse(stdout.Bytes())
}

func Parse(data []byte) ([]Node, error) {
	var doc nodesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return doc.Nodes, nil
}

// Model returns the GPU model advertised in the node features. The model is
// the last feature, or the one before when the last is "ib".
func (n Node) Model() (string, bool) {
	f := n.ActiveFeatures
	if len(f) < 2 {
		return "", false
	}
	gpu := f[len(f)-1]
	if gpu == "ib" && len(f) > 2 {
		gpu = f[len(f)-2]
	}
	return gpu, true
}

func tresGPUs(tres string) int {
	m := gpuTresRegex.FindStringSubmatch(tres)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// Aggregate groups nodes by GPU model and first partition.
func Aggregate(nodes []Node) Stats {
	stats := Stats{}
	for _, node := range nodes {
		gpu, ok := node.Model()
		if !ok || len(node.Partitions) == 0 {
			continue
		}
		partition := node.Partitions[0]
		if stats[gpu] == nil {
			stats[gpu] = map[string]*Group{}
		}
		g := stats[gpu][partition]
		if g == nil {
			g = &Group{UsedNodes: []string{}, LeftNodes: []string{}}
			stats[gpu][partition] = g
		}

		count := tresGPUs(node.Tres)
		used := tresGPUs(node.TresUsed)
		g.Count += count
		g.Used += used
		g.Left += count - used
		if used > 0 {
			g.UsedNodes = append(g.UsedNodes, node.Name)
		} else {
			g.LeftNodes = append(g.LeftNodes, node.Name)
		}
	}
	return stats
}

// Partitions returns the sorted partitions shown as columns.
func (s Stats) Partitions() []string {
	seen := map[string]bool{}
	for _, groups := range s {
		for p := range groups {
			if p != ExcludedPartition {
				seen[p] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Models returns the GPU models sorted by name.
func (s Stats) Models() []string {
	out := make([]string, 0, len(s))
	for gpu := range s {
		out = append(out, gpu)
	}
	sort.Strings(out)
	return out
}

// Only keeps the named model.
func (s Stats) Only(gpu string) (Stats, error) {
	groups, ok := s[gpu]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGPU, gpu)
	}
	return Stats{gpu: groups}, nil
}

func short(partition string) string {
	if len(partition) > 3 {
		return partition[:3]
	}
	return partition
}

func cell(n int) any {
	if n == 0 {
		return ""
	}
	return n
}

// Render prints the left and max GPU counts per model and partition.
func Render(w io.Writer, s Stats) {
	partitions := s.Partitions()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleDefault
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := table.Row{"GPU"}
	for _, p := range partitions {
		header = append(header, fmt.Sprintf("left (%s)", short(p)), fmt.Sprintf("max (%s)", short(p)))
	}
	t.AppendHeader(header)

	for _, gpu := range s.Models() {
		row := table.Row{gpu}
		for _, p := range partitions {
			g := s[gpu][p]
			if g == nil {
				row = append(row, "", "")
				continue
			}
			row = append(row, cell(g.Left), cell(g.Count))
		}
		t.AppendRow(row)
	}
	t.Render()
}

// WriteJSON dumps s indented.
func WriteJSON(w io.Writer, s Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
