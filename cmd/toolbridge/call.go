package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/sweetpotato0/toolbridge/runtime"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
	"github.com/sweetpotato0/toolbridge/tool"
)

func newCallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <provider> <tool> [json-args]",
		Short: "Invoke one tool",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			raw := []byte("{}")
			if len(args) == 3 {
				raw = []byte(args[2])
			}

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			key := provider.Key(args[0])
			req := &runtime.Request{Providers: []provider.Key{key}}
			return a.run(ctx, req, func(ctx context.Context, s *runtime.Session) error {
				t, err := s.Tool(ctx, key, args[1])
				if err != nil {
					return err
				}
				res, err := t.ExecuteJSON(ctx, raw)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
}

func printResult(w io.Writer, res *tool.Result) error {
	if res.Structured == nil {
		_, err := fmt.Fprintln(w, res.Text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
