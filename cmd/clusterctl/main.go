// Command clusterctl is the outer shim made runnable: a small cobra CLI
// that starts a named cluster from a config file and issues commands or
// pipelines against it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"rkcluster"
	"rkcluster/config"
	"rkcluster/corelog"
	"rkcluster/engine"
	"rkcluster/parser"
	"rkcluster/transport"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	clusterName string
	logger      = logrus.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clusterctl",
		Short: "Issue commands against a Redis Cluster through rkcluster",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&clusterName, "cluster", "", "cluster name, as configured")

	rootCmd.AddCommand(qCmd(), qpCmd(), topologyCmd(), dumpConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("clusterctl failed")
	}
}

func startFromConfig(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var seeds []transport.Node
	found := false
	for _, c := range cfg.Clusters {
		if c.Name != clusterName {
			continue
		}
		found = true
		for _, n := range c.Seeds {
			seeds = append(seeds, transport.Node{Host: n.Host, Port: n.Port})
		}
	}
	if !found {
		return fmt.Errorf("cluster %q is not present in %s", clusterName, configPath)
	}

	return rkcluster.Start(ctx, clusterName, seeds,
		rkcluster.WithLogger(corelog.NewLogrus(logger)),
		rkcluster.WithTransport(transport.NewGoRedisTransport(cfg.PoolSize)),
		rkcluster.WithRefreshThrottle(cfg.RefreshThrottle),
		rkcluster.WithEngineConfig(engine.Config{
			TTL:        cfg.RequestTTL,
			RetryDelay: cfg.RetryDelay,
		}),
	)
}

func parseCommand(args []string) parser.Command {
	cmd := make(parser.Command, len(args))
	for i, a := range args {
		cmd[i] = []byte(a)
	}
	return cmd
}

func qCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "q -- COMMAND [ARG...]",
		Short: "Execute a single command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := startFromConfig(ctx); err != nil {
				return err
			}
			res := rkcluster.Q(ctx, clusterName, parseCommand(args))
			return printResult(res)
		},
	}
}

func qpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qp -- CMD1 [ARG...] [; CMD2 [ARG...]]...",
		Short: "Execute a pipeline of semicolon-separated commands",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := startFromConfig(ctx); err != nil {
				return err
			}
			pipeline := parsePipeline(args)
			results := rkcluster.QP(ctx, clusterName, pipeline)
			for _, res := range results {
				if err := printResult(res); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func parsePipeline(args []string) parser.Pipeline {
	joined := strings.Join(args, " ")
	var pipeline parser.Pipeline
	for _, part := range strings.Split(joined, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		pipeline = append(pipeline, parseCommand(fields))
	}
	return pipeline
}

func topologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the cluster's current slot-to-node mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := startFromConfig(ctx); err != nil {
				return err
			}
			res := rkcluster.Q(ctx, clusterName, parser.Command{[]byte("CLUSTER"), []byte("SLOTS")})
			return printResult(res)
		},
	}
}

func dumpConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-config",
		Short: "Print the fully resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out, err := cfg.Dump()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func printResult(res rkcluster.QueryResult) error {
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", res.Err)
		return res.Err
	}
	out, err := json.Marshal(res.Reply)
	if err != nil {
		fmt.Println(res.Reply)
		return nil
	}
	fmt.Println(string(out))
	return nil
}
