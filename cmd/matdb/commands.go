package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	matdb "github.com/goliatone/go-matdb"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the materials in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := newParser()
		if err != nil {
			return err
		}
		materials, err := p.Materials()
		if err != nil {
			return err
		}
		for _, material := range materials {
			fmt.Fprintln(cmd.OutOrStdout(), material)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <material>",
	Short: "Show a material's parameters and references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newParser()
		if err != nil {
			return err
		}
		record, err := p.Load(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID: %s\n", record.ID)
		if record.Meta.Name != "" {
			fmt.Fprintf(out, "Name: %s\n", record.Meta.Name)
		}
		if record.Meta.Comment != "" {
			fmt.Fprintf(out, "Comment: %s\n", record.Meta.Comment)
		}

		fmt.Fprintln(out, "Parameters:")
		for _, name := range record.ListParameters() {
			param, err := record.Parameter(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s (%s)\n", name, strings.Join(param.References(), ", "))
		}

		fmt.Fprintln(out, "References:")
		for _, key := range record.ListReferences() {
			ref, err := record.Reference(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s [%s]\n", key, ref.Type)
		}
		return nil
	},
}

var getRef string

var getCmd = &cobra.Command{
	Use:   "get <material> <parameter>",
	Short: "Print a parameter's value per reference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newParser()
		if err != nil {
			return err
		}
		record, err := p.Load(args[0])
		if err != nil {
			return err
		}
		param, err := record.Parameter(args[1])
		if err != nil {
			return err
		}

		refs := param.References()
		if getRef != "" {
			refs = []string{getRef}
		}
		out := cmd.OutOrStdout()
		for _, refKey := range refs {
			value, err := param.Value(refKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", refKey, formatValue(value))
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <material> <parameter> <reference> <value>",
	Short: "Update a parameter value and write the file back",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newParser()
		if err != nil {
			return err
		}
		record, err := p.Load(args[0])
		if err != nil {
			return err
		}
		if err := record.SetValue(args[1], args[2], parseValue(args[3])); err != nil {
			return err
		}
		if err := p.DumpToFile(record); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s/%s (%s)\n", args[0], args[1], args[2])
		return nil
	},
}

var addFields []string

var addCmd = &cobra.Command{
	Use:   "add <material> <parameter> <reference>",
	Short: "Add a parameter entry and write the file back",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFieldFlags(addFields)
		if err != nil {
			return err
		}
		p, err := newParser()
		if err != nil {
			return err
		}
		record, err := p.Load(args[0])
		if err != nil {
			return err
		}
		param, err := matdb.NewParameter(args[1], args[2], fields)
		if err != nil {
			return err
		}
		if err := record.AddParameter(param); err != nil {
			return err
		}
		if err := p.DumpToFile(record); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s/%s (%s)\n", args[0], args[1], args[2])
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <material>",
	Short: "Print the material's YAML document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newParser()
		if err != nil {
			return err
		}
		record, err := p.Load(args[0])
		if err != nil {
			return err
		}
		out, err := p.Dump(record)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var queryEngine string

var queryCmd = &cobra.Command{
	Use:   "query <material> <expression>",
	Short: "Evaluate an expression against a material snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		evaluator, err := buildEvaluator(queryEngine)
		if err != nil {
			return err
		}
		p, err := newParser()
		if err != nil {
			return err
		}
		record, err := p.Load(args[0], matdb.WithEvaluator(evaluator))
		if err != nil {
			return err
		}
		result, err := record.Evaluate(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatValue(result.Value))
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getRef, "ref", "", "restrict output to one reference key")
	addCmd.Flags().StringArrayVar(&addFields, "field", nil, "entry field as key=value (repeatable, value required)")
	queryCmd.Flags().StringVar(&queryEngine, "engine", "expr", "expression engine: expr, cel or js")
}

func buildEvaluator(engine string) (matdb.Evaluator, error) {
	switch engine {
	case "expr", "":
		return matdb.NewExprEvaluator(), nil
	case "cel":
		return matdb.NewCELEvaluator(), nil
	case "js":
		evaluator := matdb.NewJSEvaluator()
		if evaluator == nil {
			return nil, fmt.Errorf("js engine is not compiled in (build with -tags js_eval)")
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}

// parseFieldFlags turns repeated key=value flags into an entry field map. A
// "value" field must be present.
func parseFieldFlags(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, fmt.Errorf("at least one --field is required")
	}
	fields := make(map[string]any, len(flags))
	for _, flag := range flags {
		key, raw, ok := strings.Cut(flag, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed --field %q, want key=value", flag)
		}
		fields[key] = parseValue(raw)
	}
	if _, ok := fields[matdb.FieldValue]; !ok {
		return nil, fmt.Errorf("a %q field is required", matdb.FieldValue)
	}
	return fields, nil
}

// parseValue interprets a command line argument with YAML scalar rules so
// numbers and booleans keep their type.
func parseValue(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func formatValue(value any) string {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", key, v[key]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", value)
	}
}
