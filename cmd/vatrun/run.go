package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/dispatch"
	"github.com/vatkit/liveslots/gctools"
	"github.com/vatkit/liveslots/internal/config"
	"github.com/vatkit/liveslots/internal/logging"
	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vat"
	"github.com/vatkit/liveslots/vref"
)

func runCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run <config.yaml> <deliveries.json>",
		Short: "Replay a delivery script against one vat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliveries(cmd.Context(), args[0], args[1], logLevel)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	return cmd
}

func runDeliveries(ctx context.Context, configPath, scriptPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(logLevel))
	log := logging.New(os.Stderr, level)

	script, err := loadScript(scriptPath)
	if err != nil {
		return err
	}

	sys := newPrintingSyscall(os.Stdout)
	tools := gctools.NewRuntime()

	v, _, err := vat.New(cfg, sys, tools, identityMarshaller{}, nil, log, demoRootMethods())
	if err != nil {
		return fmt.Errorf("vatrun: constructing vat: %w", err)
	}

	for i, d := range script {
		delivery, err := d.toDelivery()
		if err != nil {
			return fmt.Errorf("vatrun: delivery %d: %w", i, err)
		}
		fmt.Fprintf(os.Stdout, "--- delivery %d: %s ---\n", i, delivery.Kind)
		if err := v.Dispatch(ctx, delivery); err != nil {
			return fmt.Errorf("vatrun: delivery %d: %w", i, err)
		}
	}
	return nil
}

// demoRootMethods is the fixed method table vatrun installs on vref.Root
// for smoke-testing a delivery script: "echo" returns its arguments
// unchanged, "log" prints its body and returns an empty result.
func demoRootMethods() map[string]values.Method {
	return map[string]values.Method{
		"echo": func(ctx context.Context, args capdata.Capdata) (capdata.Capdata, error) {
			return args, nil
		},
		"log": func(ctx context.Context, args capdata.Capdata) (capdata.Capdata, error) {
			fmt.Fprintf(os.Stdout, "root.log: %s\n", string(args.Body))
			return capdata.Capdata{}, nil
		},
	}
}

// identityMarshaller never encounters application value graphs in this
// driver: every delivery script supplies Capdata bodies and slots
// directly, so Serialize/Unserialize are only ever reached if demo root
// methods build a value to send on their own, which none of them do.
type identityMarshaller struct{}

func (identityMarshaller) Serialize(ctx context.Context, body interface{}, toSlot func(values.Value) (vref.Vref, error)) (capdata.Capdata, error) {
	if cd, ok := body.(capdata.Capdata); ok {
		return cd, nil
	}
	return capdata.Capdata{}, nil
}

func (identityMarshaller) Unserialize(ctx context.Context, cd capdata.Capdata, toVal func(vref.Vref, string) (values.Value, error)) (interface{}, error) {
	return cd, nil
}

// deliveryJSON is the on-disk shape of one entry in a deliveries.json
// script: vrefs are the textual form vref.String/vref.Parse round-trip,
// e.g. "o+5", "o-10", "p+6".
type deliveryJSON struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
	Method string `json:"method,omitempty"`
	Body   string `json:"body,omitempty"`
	Slots  []string `json:"slots,omitempty"`
	Result string `json:"result,omitempty"`

	Entries []notifyEntryJSON `json:"entries,omitempty"`
	Vrefs   []string          `json:"vrefs,omitempty"`
}

type notifyEntryJSON struct {
	Vpid       string   `json:"vpid"`
	IsRejected bool     `json:"isRejected"`
	Body       string   `json:"body"`
	Slots      []string `json:"slots,omitempty"`
}

func loadScript(path string) ([]deliveryJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var script []deliveryJSON
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return script, nil
}

func parseVrefs(ss []string) ([]vref.Vref, error) {
	out := make([]vref.Vref, len(ss))
	for i, s := range ss {
		v, err := vref.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseVrefOrZero(s string) (vref.Vref, error) {
	if s == "" {
		return vref.Vref{}, nil
	}
	return vref.Parse(s)
}

func (d deliveryJSON) toDelivery() (dispatch.Delivery, error) {
	switch d.Kind {
	case "message":
		target, err := vref.Parse(d.Target)
		if err != nil {
			return dispatch.Delivery{}, err
		}
		result, err := parseVrefOrZero(d.Result)
		if err != nil {
			return dispatch.Delivery{}, err
		}
		slots, err := parseVrefs(d.Slots)
		if err != nil {
			return dispatch.Delivery{}, err
		}
		args := capdata.Capdata{Body: []byte(d.Body), Slots: slots}
		return dispatch.NewMessage(target, d.Method, args, result), nil

	case "notify":
		entries := make([]dispatch.NotifyEntry, len(d.Entries))
		for i, e := range d.Entries {
			vpid, err := vref.Parse(e.Vpid)
			if err != nil {
				return dispatch.Delivery{}, err
			}
			slots, err := parseVrefs(e.Slots)
			if err != nil {
				return dispatch.Delivery{}, err
			}
			entries[i] = dispatch.NotifyEntry{
				Vpid:       vpid,
				IsRejected: e.IsRejected,
				Value:      capdata.Capdata{Body: []byte(e.Body), Slots: slots},
			}
		}
		return dispatch.NewNotify(entries), nil

	case "dropExports":
		vrefs, err := parseVrefs(d.Vrefs)
		if err != nil {
			return dispatch.Delivery{}, err
		}
		return dispatch.NewDropExports(vrefs), nil

	case "retireExports":
		vrefs, err := parseVrefs(d.Vrefs)
		if err != nil {
			return dispatch.Delivery{}, err
		}
		return dispatch.NewRetireExports(vrefs), nil

	case "retireImports":
		vrefs, err := parseVrefs(d.Vrefs)
		if err != nil {
			return dispatch.Delivery{}, err
		}
		return dispatch.NewRetireImports(vrefs), nil

	default:
		return dispatch.Delivery{}, fmt.Errorf("unknown delivery kind %q", d.Kind)
	}
}
