package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/finrag/internal/version"
	finrag "github.com/kailas-cloud/finrag/pkg/sdk"
)

const defaultServer = "http://localhost:8080"

type globalFlags struct {
	server    string
	apiKey    string
	namespace string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "finragctl",
		Short:         "Client for the finrag document Q&A service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.server, "server", envOr("FINRAG_SERVER", defaultServer), "finrag server URL (env FINRAG_SERVER)")
	pf.StringVar(&g.apiKey, "api-key", os.Getenv("FINRAG_API_KEY"), "API key (env FINRAG_API_KEY)")
	pf.StringVarP(&g.namespace, "namespace", "n", os.Getenv("FINRAG_NAMESPACE"),
		"namespace for servers without API keys (env FINRAG_NAMESPACE)")
	pf.DurationVar(&g.timeout, "timeout", 5*time.Minute, "request timeout")

	root.AddCommand(
		newUploadCmd(g),
		newDocumentsCmd(g),
		newDeleteCmd(g),
		newChatCmd(g),
		newUsageCmd(g),
		newHealthCmd(g),
		newVersionCmd(),
	)
	return root
}

func (g *globalFlags) client() (*finrag.Client, error) {
	if g.apiKey == "" && g.namespace == "" {
		return nil, errors.New("set --api-key or --namespace")
	}
	opts := []finrag.Option{
		finrag.WithUserAgent("finragctl/" + version.Version),
		finrag.WithHTTPClient(newHTTPClient(g.timeout)),
	}
	if g.apiKey != "" {
		opts = append(opts, finrag.WithAPIKey(g.apiKey))
	} else {
		opts = append(opts, finrag.WithNamespace(g.namespace))
	}
	return finrag.New(g.server, opts...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "finragctl %s\n", version.String())
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
