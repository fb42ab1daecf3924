package client

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/protocol"
)

func newConnectCommand(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect [addr]",
		Args:  cobra.ExactArgs(1),
		Short: "connect the node to another node",
		Long: `Connect the node to another node.

The address is the peer address of the other node. Once connected, the other
nodes in the cluster are notified about the new node.

Examples:
  gossip client connect 10.26.104.56:8001
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		client := connect(conf)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		exitOnError("failed to connect", client.Connect(ctx, args[0]))

		printYAML(&protocol.ConnectResponse{})
	}

	return cmd
}

func newShutdownCommand(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shutdown",
		Args:  cobra.NoArgs,
		Short: "shutdown the node",
		Long: `Shutdown the node.

The node notifies the cluster it is leaving then stops.

Examples:
  gossip client shutdown
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		client := connect(conf)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		accepted, err := client.Shutdown(ctx)
		exitOnError("failed to shutdown", err)

		printYAML(&protocol.ShutdownResponse{Accepted: accepted})
	}

	return cmd
}

type statusOutput struct {
	Node  *node.Snapshot    `json:"node"`
	Slots []node.SlotStatus `json:"slots"`
}

func newStatusCommand(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Args:  cobra.NoArgs,
		Short: "inspect the node status",
		Long: `Inspect the node status.

Outputs the node addresses, memory used, known peers and the version of each
slot.

Examples:
  gossip client status
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		client := connect(conf)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		snapshot, err := client.Status(ctx)
		exitOnError("failed to get status", err)

		slots, err := client.Slots(ctx)
		exitOnError("failed to get slots", err)

		printYAML(&statusOutput{
			Node:  snapshot,
			Slots: slots,
		})
	}

	return cmd
}
