package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// storeCmd is the "Vatstore CLI inspection command" named in the
// supplemented-feature list: a standalone way to read and edit a vat's
// persisted key-value state (package vstore) without a running vat or
// kernel connection. Keys and values are stored base64-encoded in a JSON
// snapshot file on disk; vatrun run never writes this file itself (a real
// vat's vatstore lives behind syscall.VatstoreGet/Set/Delete on the
// kernel side), so this is purely an operator-facing inspection tool
// against a snapshot an operator has exported some other way.
func storeCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect or edit a vatstore snapshot file",
	}
	cmd.PersistentFlags().StringVar(&path, "file", "vatstore.json", "path to the vatstore snapshot file")

	cmd.AddCommand(
		storeGetCmd(&path),
		storeSetCmd(&path),
		storeDeleteCmd(&path),
		storeListCmd(&path),
	)
	return cmd
}

type storeSnapshot map[string]string // key -> base64(value)

func loadSnapshot(path string) (storeSnapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return storeSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var snap storeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return snap, nil
}

func saveSnapshot(path string, snap storeSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func storeGetCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored for key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(*path)
			if err != nil {
				return err
			}
			encoded, ok := snap[args[0]]
			if !ok {
				return fmt.Errorf("store: no value for key %q", args[0])
			}
			value, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return fmt.Errorf("store: corrupt snapshot entry for %q: %w", args[0], err)
			}
			fmt.Println(string(value))
			return nil
		},
	}
}

func storeSetCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set the value stored for key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(*path)
			if err != nil {
				return err
			}
			snap[args[0]] = base64.StdEncoding.EncodeToString([]byte(args[1]))
			return saveSnapshot(*path, snap)
		},
	}
}

func storeDeleteCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete the value stored for key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(*path)
			if err != nil {
				return err
			}
			delete(snap, args[0])
			return saveSnapshot(*path, snap)
		},
	}
}

func storeListCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every key in the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(*path)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(snap))
			for k := range snap {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE")
			for _, k := range keys {
				value, err := base64.StdEncoding.DecodeString(snap[k])
				if err != nil {
					return fmt.Errorf("store: corrupt snapshot entry for %q: %w", k, err)
				}
				fmt.Fprintf(tw, "%s\t%d\n", k, len(value))
			}
			return tw.Flush()
		},
	}
}
