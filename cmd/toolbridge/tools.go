package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sweetpotato0/toolbridge/runtime"
	"github.com/sweetpotato0/toolbridge/runtime/provider"
	"github.com/sweetpotato0/toolbridge/tool"
)

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools [provider...]",
		Short: "List the tools every provider exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			req := &runtime.Request{}
			for _, arg := range args {
				req.Providers = append(req.Providers, provider.Key(arg))
			}
			return a.run(ctx, req, func(_ context.Context, s *runtime.Session) error {
				return printToolkits(cmd.OutOrStdout(), s.Toolkits())
			})
		},
	}
}

func printToolkits(w io.Writer, kits map[provider.Key]*tool.Toolkit) error {
	keys := make([]provider.Key, 0, len(kits))
	for k := range kits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, key := range keys {
		kit := kits[key]
		fmt.Fprintf(tw, "%s\t(%d tools)\n", key, kit.Len())
		for _, t := range kit.Tools {
			fmt.Fprintf(tw, "  %s\t%s\n", t.Name, t.Description)
		}
		for _, r := range kit.Rejected {
			fmt.Fprintf(tw, "  %s\trejected: %v\n", r.Name, r.Err)
		}
	}
	return tw.Flush()
}
