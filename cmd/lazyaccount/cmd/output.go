package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"sigs.k8s.io/yaml"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func isOutputFormat(s string) bool {
	return s == outputText || s == outputJSON || s == outputYAML
}

// printOutput writes v in the selected format. Text output prints the JSON fields of
// v as sorted key: value lines.
func printOutput(w io.Writer, format string, v interface{}) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return err
	}

	switch format {
	case outputJSON:
		var pretty interface{}
		if err := json.Unmarshal(bz, &pretty); err != nil {
			return err
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case outputYAML:
		out, err := yaml.JSONToYAML(bz)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(bz, &fields); err != nil {
		_, err = fmt.Fprintln(w, string(bz))
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s: %v\n", k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}
