package cli

import (
	"github.com/spf13/cobra"

	"github.com/tangrc99/Gossip/cli/client"
	"github.com/tangrc99/Gossip/cli/node"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gossip [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Gossip is a replicated key/value store where nodes share data
by gossiping with each other.

Each node owns a slot of key/value pairs that only it writes to. Updates to a
slot are propagated to a random subset of peers, which relay the update on
until it reaches the whole cluster. Nodes periodically exchange slot versions
with a random peer to repair any node that fell behind, and remove peers that
stay unreachable.

Start a node with:

  $ gossip node

Start another node and join the cluster with:

  $ gossip node --cluster.join 10.26.104.14:8001

You can then read and write keys using:

  $ gossip client insert foo bar
  $ gossip client search foo
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(client.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
