package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/tunnelprefs/internal/api"
	"github.com/kalambet/tunnelprefs/internal/config"
)

// --- get ---

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the current value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runGet(cmd.Context(), client, cmd.OutOrStdout(), args[0])
	},
}

func runGet(ctx context.Context, client *apiClient, out io.Writer, name string) error {
	resp, err := client.get(ctx, "/prefs/"+url.PathEscape(name))
	if err != nil {
		return err
	}

	var view api.SettingView
	if err := decodeJSON(resp, &view); err != nil {
		return err
	}

	fmt.Fprintln(out, formatValue(view.Value))
	return nil
}

// --- set ---

var setCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Change a setting",
	Long: `Change a setting. Bools take true/false, string sets take a comma
separated list. Settings with a side effect restart the application or
its active tunnels once the value is stored.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		view, err := runSet(cmd.Context(), client, args[0], args[1])
		if err != nil {
			return err
		}

		printSuccess("Set %s = %s", view.Name, formatValue(view.Value))
		if view.SideEffect != "none" {
			printStep("side effect: %s", view.SideEffect)
		}
		return nil
	},
}

func runSet(ctx context.Context, client *apiClient, name, value string) (api.SettingView, error) {
	resp, err := client.put(ctx, "/prefs/"+url.PathEscape(name), api.SetRequest{Text: &value})
	if err != nil {
		return api.SettingView{}, err
	}

	var view api.SettingView
	if err := decodeJSON(resp, &view); err != nil {
		return api.SettingView{}, err
	}
	return view, nil
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with its key and value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runList(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runList(ctx context.Context, client *apiClient, out io.Writer) error {
	resp, err := client.get(ctx, "/prefs")
	if err != nil {
		return err
	}

	var views []api.SettingView
	if err := decodeJSON(resp, &views); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKEY\tTYPE\tVALUE")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Name, v.Key, v.Type, formatValue(v.Value))
	}
	return tw.Flush()
}

// --- invalidate ---

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <key>",
	Short: "Reload a storage key that was changed outside tunnelprefs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := runInvalidate(cmd.Context(), client, args[0]); err != nil {
			return err
		}

		printSuccess("Invalidated %s", args[0])
		return nil
	},
}

func runInvalidate(ctx context.Context, client *apiClient, key string) error {
	resp, err := client.post(ctx, "/keys/"+url.PathEscape(key)+"/invalidate", nil)
	if err != nil {
		return err
	}

	var result map[string]string
	return decodeJSON(resp, &result)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
