package client

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	gossipclient "github.com/tangrc99/Gossip/client"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "send requests to a node",
		Long: `Send requests to a node.

Each node exposes an HTTP API to read and write keys in its slot, inspect
the node status and manage the cluster.

Writes only update the slot of the node the request is sent to. The update
is then gossiped to the rest of the cluster.

See 'client --help' for the available commands.

Examples:
  # Set key 'foo' on the local node.
  gossip client insert foo bar

  # Get the value of 'foo' in every slot known by node 10.26.104.56:8002.
  gossip client search foo --node.url http://10.26.104.56:8002

  # Connect the local node to another node.
  gossip client connect 10.26.104.56:8001
`,
	}

	var conf Config
	conf.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newInsertCommand(&conf))
	cmd.AddCommand(newGetCommand(&conf))
	cmd.AddCommand(newSearchCommand(&conf))
	cmd.AddCommand(newDeleteCommand(&conf))
	cmd.AddCommand(newConnectCommand(&conf))
	cmd.AddCommand(newShutdownCommand(&conf))
	cmd.AddCommand(newStatusCommand(&conf))

	return cmd
}

// connect creates a client for the configured node, exiting on failure.
//
// If no token is configured, the token is requested from the node.
func connect(conf *Config) *gossipclient.Client {
	if err := conf.Validate(); err != nil {
		fmt.Printf("invalid config: %s\n", err.Error())
		os.Exit(1)
	}

	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.Node.URL)

	token := conf.Node.Token
	if token == "" {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		echoClient := gossipclient.NewClient(url, "")
		defer echoClient.Close()

		discovered, err := echoClient.Echo(ctx)
		if err == nil {
			token = discovered
		}
		// If echo fails the request is sent without a token, which succeeds
		// if the node has no token configured.
	}

	return gossipclient.NewClient(url, token)
}

func exitOnError(msg string, err error) {
	if err != nil {
		fmt.Printf("%s: %s\n", msg, err.Error())
		os.Exit(1)
	}
}
