package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petrijr/statum"
)

// schematicTypes selects the state/input types a YAML file is decoded as.
var schematicTypes = []string{"string", "int"}

func newSchematicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schematic",
		Short: "Inspect YAML schematic files",
	}

	var types string
	cmd.PersistentFlags().StringVar(&types, "types", "string", fmt.Sprintf("state and input type of the schematic %v", schematicTypes))

	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Check that a schematic file is valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, states, err := describeSchematic(types, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schematic %q is valid (%d states)\n", name, states)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dot FILE",
		Short: "Render a schematic file as a Graphviz digraph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch types {
			case "string":
				s, err := statum.LoadSchematicYAML[string, string](args[0])
				if err != nil {
					return err
				}
				return s.WriteDOT(cmd.OutOrStdout())
			case "int":
				s, err := statum.LoadSchematicYAML[int, int](args[0])
				if err != nil {
					return err
				}
				return s.WriteDOT(cmd.OutOrStdout())
			default:
				return unknownTypes(types)
			}
		},
	})
	return cmd
}

func describeSchematic(types, path string) (string, int, error) {
	switch types {
	case "string":
		s, err := statum.LoadSchematicYAML[string, string](path)
		if err != nil {
			return "", 0, err
		}
		return s.Name(), len(s.States()), nil
	case "int":
		s, err := statum.LoadSchematicYAML[int, int](path)
		if err != nil {
			return "", 0, err
		}
		return s.Name(), len(s.States()), nil
	default:
		return "", 0, unknownTypes(types)
	}
}

func unknownTypes(types string) error {
	return fmt.Errorf("unsupported --types %q, want one of %v", types, schematicTypes)
}
