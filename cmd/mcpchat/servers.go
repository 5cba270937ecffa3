package mcpchat

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelrelay/mcpchat/pkg/mcp"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage MCP server configurations",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		servers := store.GetAll()
		if len(servers) == 0 {
			fmt.Println("No MCP servers configured.")
			return nil
		}
		for _, server := range servers {
			state := "disabled"
			if server.Enabled {
				state = "enabled"
			}
			fmt.Printf("%-20s %-10s %s\n", server.Name, state, server.Endpoint)
			if len(server.AvailableTools) > 0 {
				fmt.Printf("%-20s tools: %s\n", "", strings.Join(server.AvailableTools, ", "))
			}
		}
		return nil
	},
}

var serversAddCmd = &cobra.Command{
	Use:   "add <name> <endpoint>",
	Short: "Add an MCP server configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		server := mcp.DefaultServerConfig()
		server.Name = args[0]
		server.Endpoint = args[1]
		if err := store.Add(server); err != nil {
			return err
		}
		if err := store.Save(""); err != nil {
			return err
		}
		fmt.Printf("Added server %s\n", server.Name)
		return nil
	},
}

var serversRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an MCP server configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		if err := store.Remove(args[0]); err != nil {
			return err
		}
		if err := store.Save(""); err != nil {
			return err
		}
		fmt.Printf("Removed server %s\n", args[0])
		return nil
	},
}

var serversEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setServerEnabled(args[0], true) },
}

var serversDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setServerEnabled(args[0], false) },
}

func openStore() (*mcp.ConfigStore, error) {
	store := mcp.NewConfigStore(cfg.MCP.ServersPath)
	if err := store.Load(""); err != nil {
		return nil, err
	}
	return store, nil
}

func setServerEnabled(name string, enabled bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	if enabled {
		err = store.Enable(name)
	} else {
		err = store.Disable(name)
	}
	if err != nil {
		return err
	}
	if err := store.Save(""); err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Enabled server %s\n", name)
	} else {
		fmt.Printf("Disabled server %s\n", name)
	}
	return nil
}
