package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/sweetpotato0/toolbridge/config"
	"github.com/sweetpotato0/toolbridge/runner"
	"github.com/sweetpotato0/toolbridge/runtime"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
	"github.com/sweetpotato0/toolbridge/tool"
)

// batchLine is one JSON-lines entry of a batch file.
type batchLine struct {
	ID       string         `json:"id,omitempty"`
	Provider string         `json:"provider"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
}

type batchOutput struct {
	ID     string       `json:"id"`
	Result *tool.Result `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Run JSON-lines tool calls concurrently over one connection per provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			lines, err := readBatch(in)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			limit := a.cfg.Execution.BatchLimit
			if concurrency > 0 {
				limit = concurrency
			}
			if err := config.ValidateRunnerConfig(limit); err != nil {
				return err
			}

			req := &runtime.Request{Providers: batchProviders(lines)}
			return a.run(ctx, req, func(ctx context.Context, s *runtime.Session) error {
				tasks, failed := resolveTasks(ctx, s, lines)
				results := runner.NewParallelRunner(limit).RunParallel(ctx, tasks)
				return writeBatch(cmd.OutOrStdout(), failed, results)
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum concurrent calls (defaults to execution.batch_limit)")
	return cmd
}

func readBatch(r io.Reader) ([]batchLine, error) {
	var lines []batchLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := sc.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		var line batchLine
		if err := json.Unmarshal(text, &line); err != nil {
			return nil, fmt.Errorf("batch line %d: %w", n, err)
		}
		if line.Provider == "" || line.Tool == "" {
			return nil, fmt.Errorf("batch line %d: provider and tool are required", n)
		}
		if line.ID == "" {
			line.ID = strconv.Itoa(n)
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

// batchProviders returns each referenced provider once, in first-use order.
func batchProviders(lines []batchLine) []provider.Key {
	seen := make(map[string]bool)
	var keys []provider.Key
	for _, l := range lines {
		if !seen[l.Provider] {
			seen[l.Provider] = true
			keys = append(keys, provider.Key(l.Provider))
		}
	}
	return keys
}

// resolveTasks looks up every tool. Lines whose tool cannot be resolved are
// reported without running.
func resolveTasks(ctx context.Context, s *runtime.Session, lines []batchLine) ([]*runner.Task, []*runner.Result) {
	tasks := make([]*runner.Task, 0, len(lines))
	var failed []*runner.Result
	for _, l := range lines {
		t, err := s.Tool(ctx, provider.Key(l.Provider), l.Tool)
		if err != nil {
			failed = append(failed, &runner.Result{TaskID: l.ID, Error: err})
			continue
		}
		args := l.Args
		if args == nil {
			args = map[string]any{}
		}
		tasks = append(tasks, &runner.Task{ID: l.ID, Tool: t, Args: args})
	}
	return tasks, failed
}

func writeBatch(w io.Writer, groups ...[]*runner.Result) error {
	enc := json.NewEncoder(w)
	for _, results := range groups {
		for _, r := range results {
			out := batchOutput{ID: r.TaskID, Result: r.Output}
			if r.Error != nil {
				out.Error = r.Error.Error()
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
	}
	return nil
}
