package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pilotcli/pilot/internal/config"
)

// configCommand groups settings subcommands operating on the global file.
func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage global settings",
	}
	cmd.AddCommand(configListCommand())
	cmd.AddCommand(configGetCommand())
	cmd.AddCommand(configSetCommand())
	return cmd
}

// configListCommand prints all stored settings keys.
func configListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadGlobal()
			if err != nil {
				return err
			}
			if len(settings.Raw) == 0 {
				fmt.Fprintln(os.Stdout, "No settings stored.")
				return nil
			}
			keys := make([]string, 0, len(settings.Raw))
			for key := range settings.Raw {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(os.Stdout, "%s=%s\n", key, renderSettingValue(settings.Raw[key]))
			}
			return nil
		},
	}
}

// configGetCommand prints one setting value.
func configGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadGlobal()
			if err != nil {
				return err
			}
			value, ok := settings.Raw[args[0]]
			if !ok {
				return fmt.Errorf("unknown setting: %s", args[0])
			}
			fmt.Fprintln(os.Stdout, renderSettingValue(value))
			return nil
		},
	}
}

// configSetCommand stores one setting in the global file.
func configSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadGlobal()
			if err != nil {
				return err
			}
			raw := settings.Raw
			if raw == nil {
				raw = map[string]any{}
			}
			raw[args[0]] = parseSettingValue(args[1])
			if err := config.Save(raw); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Set %s\n", args[0])
			return nil
		},
	}
}

// parseSettingValue keeps JSON-shaped values structured and falls back
// to a plain string.
func parseSettingValue(value string) any {
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		return parsed
	}
	return value
}

// renderSettingValue prints scalars bare and everything else as JSON.
func renderSettingValue(value any) string {
	if text, ok := value.(string); ok {
		return text
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
