package client

import (
	"context"
	"fmt"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/tangrc99/Gossip/pkg/protocol"
)

func newInsertCommand(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert [key] [value]",
		Args:  cobra.ExactArgs(2),
		Short: "set a key in the node's slot",
		Long: `Set a key in the node's slot.

Outputs the new version of the node's slot.

Examples:
  gossip client insert foo bar
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		client := connect(conf)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		version, err := client.Insert(ctx, args[0], args[1])
		exitOnError("failed to insert", err)

		printYAML(&protocol.VersionResponse{Version: version})
	}

	return cmd
}

func newGetCommand(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [key]",
		Args:  cobra.ExactArgs(1),
		Short: "get a key from the node's slot",
		Long: `Get a key from the node's slot.

Only the slot owned by the node is searched. Use 'search' to get the value
from every slot.

Examples:
  gossip client get foo
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		client := connect(conf)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		value, err := client.Get(ctx, args[0])
		exitOnError("failed to get", err)

		printYAML(&protocol.GetResponse{Value: value})
	}

	return cmd
}

type searchOutput struct {
	Values []protocol.Value `json:"values"`
}

func newSearchCommand(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [key]",
		Args:  cobra.ExactArgs(1),
		Short: "get a key from every slot",
		Long: `Get a key from every slot known by the node.

Outputs the value in each slot containing the key, along with the node that
owns the slot and the slot version.

Examples:
  gossip client search foo
`,
	}

	var latest bool
	cmd.Flags().BoolVar(
		&latest,
		"latest",
		false,
		`
Request the latest values. Currently the node always returns its local
replicas.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		client := connect(conf)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		values, err := client.Search(ctx, args[0], latest)
		exitOnError("failed to search", err)

		printYAML(&searchOutput{Values: values})
	}

	return cmd
}

func newDeleteCommand(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [key]",
		Args:  cobra.ExactArgs(1),
		Short: "delete a key from the node's slot",
		Long: `Delete a key from the node's slot.

Outputs the new version of the node's slot.

Examples:
  gossip client delete foo
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		client := connect(conf)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
		defer cancel()

		version, err := client.Delete(ctx, args[0])
		exitOnError("failed to delete", err)

		printYAML(&protocol.VersionResponse{Version: version})
	}

	return cmd
}

func printYAML(v any) {
	b, _ := yaml.Marshal(v)
	fmt.Print(string(b))
}
