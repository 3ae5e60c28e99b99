package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format renders r as text, json, yaml or csv. A batch with a single
// successful document renders that document's result alone, so single
// file output is the plain extraction result.
func Format(r *Result, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(r)
	case "yaml":
		return formatYAML(r)
	case "csv":
		return formatCSV(r)
	case "text", "":
		return formatText(r), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func single(r *Result) bool {
	return len(r.Items) == 1 && r.Items[0].Result != nil
}

func formatJSON(r *Result) (string, error) {
	var v any = r
	if single(r) {
		v = r.Items[0].Result
	}
	bts, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatYAML(r *Result) (string, error) {
	var v any = r
	if single(r) {
		v = r.Items[0].Result
	}
	bts, err := yaml.Marshal(v)
	return string(bts), err
}

// formatCSV writes one row per page.
func formatCSV(r *Result) (string, error) {
	rows := [][]string{{"file", "page", "method", "characters", "confidence", "error", "text"}}
	for _, it := range r.Items {
		if it.Result == nil {
			rows = append(rows, []string{it.File, "", "", "", "", it.Error, ""})
			continue
		}
		for _, p := range it.Result.Pages {
			rows = append(rows, []string{
				it.File,
				strconv.Itoa(p.PageNumber),
				p.Method.String(),
				strconv.Itoa(p.CharacterCount),
				strconv.FormatFloat(p.Confidence, 'f', 3, 64),
				p.Error,
				p.Text,
			})
		}
	}

	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return output.String(), nil
}

// formatText writes the full text of each document, headed by its file
// name when there is more than one.
func formatText(r *Result) string {
	if single(r) {
		return r.Items[0].Result.FullText + "\n"
	}
	var output strings.Builder
	for i, it := range r.Items {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", it.File)
		if it.Result == nil {
			fmt.Fprintf(&output, "error: %s\n", it.Error)
			continue
		}
		if it.Result.FullText != "" {
			output.WriteString(it.Result.FullText)
			output.WriteString("\n")
		}
	}
	return output.String()
}
