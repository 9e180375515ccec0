package main

import (
	"encoding/json"
	"fmt"
	"io"

	"taskhost/internal/pkg/host"
	"taskhost/internal/service/taskhost"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

// planReport is what validate prints
type planReport struct {
	MaxInstances int               `json:"max_instances" yaml:"max_instances"`
	Allocated    int               `json:"allocated" yaml:"allocated"`
	Processors   []host.Allocation `json:"processors" yaml:"processors"`
	Tasks        []host.TaskInfo   `json:"tasks" yaml:"tasks"`
}

// newValidateCmd creates the validate command
func newValidateCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and print the instances the host would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), *configPath, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")

	return cmd
}

func runValidate(w io.Writer, configPath, output string) error {
	if output != "yaml" && output != "json" {
		return fmt.Errorf("unsupported output format %q", output)
	}

	var (
		h        *host.Host
		registry *host.Registry
	)
	app := fx.New(
		taskhost.PlanApp(configPath),
		fx.NopLogger,
		fx.Populate(&h, &registry),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	report := planReport{
		MaxInstances: h.MaxInstances(),
		Processors:   h.Plan(),
		Tasks:        registry.Tasks(),
	}
	invalid := 0
	for _, a := range report.Processors {
		report.Allocated += a.Allocated
		if a.Error != "" {
			invalid++
		}
	}

	if err := writeReport(w, report, output); err != nil {
		return err
	}
	if invalid > 0 {
		return fmt.Errorf("%d processor definition(s) cannot be built", invalid)
	}
	return nil
}

func writeReport(w io.Writer, report planReport, output string) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return enc.Close()
}
