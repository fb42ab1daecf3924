package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	gossipconfig "github.com/tangrc99/Gossip/pkg/config"
	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/server"
	"github.com/tangrc99/Gossip/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a cluster node",
		Long: `Start a cluster node.

Each node owns a slot of key/value pairs that only it writes to. Updates are
gossiped to the other nodes in the cluster, so every node holds a replica of
every other node's slot.

The node listens for RPCs from other nodes on '--peer.bind-addr' and for
client HTTP requests on '--api.bind-addr'. Use '--cluster.join' to configure
the peer addresses of existing nodes in the cluster to join.

Examples:
  # Start a node.
  gossip node

  # Start a node listening for peers on :7001 and clients on :7002.
  gossip node --peer.bind-addr :7001 --api.bind-addr :7002

  # Start a node and join an existing cluster.
  gossip node --cluster.join 10.26.104.14:8001,10.26.104.75:8001

  # Start a node requiring clients to send a token.
  gossip node --node.token my-token
`,
	}

	conf := config.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := gossipconfig.Load(configPath, conf, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *config.Config, logger log.Logger) error {
	s, err := server.NewServer(conf, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	return s.Run(ctx)
}
