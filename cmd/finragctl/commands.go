package main

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	finrag "github.com/kailas-cloud/finrag/pkg/sdk"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newUploadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>...",
		Short: "Upload and index PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			for _, p := range args {
				res, err := c.UploadFile(cmd.Context(), p)
				if err != nil {
					return fmt.Errorf("upload %s: %w", p, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d chunks\n", res.Filename, res.PageCount, res.ChunkCount)
			}
			return nil
		},
	}
}

func newDocumentsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "documents",
		Aliases: []string{"ls"},
		Short:   "List uploaded documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			docs, err := c.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents uploaded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILENAME\tPAGES\tCHUNKS")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Filename, d.PageCount, d.ChunkCount)
			}
			return tw.Flush()
		},
	}
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <filename>",
		Aliases: []string{"rm"},
		Short:   "Delete an uploaded document",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			res, err := c.DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%d chunks)\n", args[0], res.Deleted)
			if res.Degraded {
				cmd.PrintErrln("warning: some chunks may remain, retry the delete")
			}
			return nil
		},
	}
}

func newChatCmd(g *globalFlags) *cobra.Command {
	var noStream bool
	cmd := &cobra.Command{
		Use:   "chat <question>...",
		Short: "Ask a question about the uploaded documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")

			if noStream {
				ans, err := c.Chat(cmd.Context(), question, nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
				printSources(cmd, ans.Citations)
				return nil
			}

			st, err := c.ChatStream(cmd.Context(), question, nil)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			var sources []finrag.Citation
			for st.Next() {
				ev := st.Event()
				switch ev.Kind {
				case finrag.EventToken:
					fmt.Fprint(cmd.OutOrStdout(), ev.Token)
				case finrag.EventSources:
					sources = ev.Sources
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if err := st.Err(); err != nil {
				return err
			}
			printSources(cmd, sources)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full answer instead of streaming")
	return cmd
}

func printSources(cmd *cobra.Command, sources []finrag.Citation) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nSources:")
	for _, s := range sources {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s, page %d\n", s.Filename, s.Page)
	}
}

func newUsageCmd(g *globalFlags) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show the embedding token budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			r, err := c.Usage(cmd.Context(), finrag.UsagePeriod(period))
			if err != nil {
				return err
			}
			limit := "unlimited"
			if r.TokensLimit > 0 {
				limit = fmt.Sprintf("%d (%d remaining)", r.TokensLimit, r.TokensRemaining)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d tokens used, limit %s\n", r.Provider, r.Period, r.TokensUsed, limit)
			if r.IsExhausted {
				fmt.Fprintln(cmd.OutOrStdout(), "budget exhausted")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "month", "day or month")
	return cmd
}

func newHealthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			hs, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (version %s)\n", hs.Status, hs.Version)
			for name, st := range hs.Checks {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, st)
			}
			return nil
		},
	}
}
