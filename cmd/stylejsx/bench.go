package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/recera/stylejsx/cmd/stylejsx/internal/config"
	"github.com/recera/stylejsx/cmd/stylejsx/internal/ui"
	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/surface"
)

type benchOptions struct {
	project   projectOptions
	ops       int
	styles    int
	maxLength int
	seed      uint64
}

func newBenchCommand() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure mount, update and unmount churn on both backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.project.config()
			if err != nil {
				return err
			}
			reports, err := runBench(cfg, &opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ui.RenderReports(reports))
			return err
		},
	}

	opts.project.AddFlags(cmd.Flags())
	cmd.Flags().IntVarP(&opts.ops, "ops", "n", 20000, "operations per backend")
	cmd.Flags().IntVar(&opts.styles, "styles", 200, "number of distinct dynamic values")
	cmd.Flags().IntVar(&opts.maxLength, "max-length", 0, "rules per container (defaults to stylejsx.json)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "random seed")

	return cmd
}

func runBench(cfg *config.Config, opts *benchOptions) ([]ui.Report, error) {
	var reports []ui.Report
	for _, backend := range []struct {
		name string
		mode registry.SpeedyMode
	}{
		{"text", registry.SpeedyOff},
		{"speedy", registry.SpeedyOn},
	} {
		regOpts := cfg.RegistryOptions()
		regOpts.Speedy = backend.mode
		regOpts.Document = surface.NewHTMLDocument()
		regOpts.Logger = opts.project.logger()
		regOpts.Production = true
		if opts.maxLength > 0 {
			regOpts.MaxLength = opts.maxLength
		}

		r, err := registry.New(regOpts)
		if err != nil {
			return nil, err
		}

		report, err := churn(r, opts.ops, opts.styles, rand.New(rand.NewPCG(opts.seed, opts.seed)))
		if err != nil {
			return nil, fmt.Errorf("%s backend: %w", backend.name, err)
		}
		report.Backend = backend.name
		reports = append(reports, report)
	}
	return reports, nil
}

// churn mounts, updates and unmounts random dynamic instances of one
// component.
func churn(r *registry.Registry, ops, styles int, rng *rand.Rand) (ui.Report, error) {
	if styles < 1 {
		styles = 1
	}
	payload := func(v int) registry.Payload {
		return registry.Payload{
			StyleID: "bench",
			CSS:     registry.Single(fmt.Sprintf(".cell.%s{width:%dpx}", registry.DynamicSelector, v)),
			Dynamic: []any{v},
		}
	}

	var live []int
	start := time.Now()
	for i := 0; i < ops; i++ {
		var err error
		switch op := rng.IntN(3); {
		case op == 0 || len(live) == 0:
			v := rng.IntN(styles)
			err = r.Add(payload(v))
			live = append(live, v)
		case op == 1:
			at := rng.IntN(len(live))
			v := rng.IntN(styles)
			err = r.Update(payload(live[at]), payload(v))
			live[at] = v
		default:
			at := rng.IntN(len(live))
			err = r.Remove(payload(live[at]))
			live = append(live[:at], live[at+1:]...)
		}
		if err != nil {
			return ui.Report{}, err
		}
	}
	elapsed := time.Since(start)

	return ui.Report{
		Operations: ops,
		Elapsed:    elapsed,
		Containers: r.Sheet().Containers(),
		Indices:    r.Sheet().Len(),
		Live:       len(r.CSSRules()),
	}, nil
}

