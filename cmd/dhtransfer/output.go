// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/services/transfer"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

// printValue writes v as json or yaml.
func printValue(w io.Writer, format string, v any) error {
	switch utils.TranslateFormat(format) {
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, utils.PrettyJSON(b))
		return err
	}
}

func printResults(w io.Writer, format string, results []transfer.Result) error {
	if utils.TranslateFormat(format) != "short" {
		return printValue(w, format, results)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tSTATUS\tBYTES\tDURATION\tURL")
	for _, r := range results {
		status := "-"
		if r.Status != 0 {
			status = fmt.Sprint(r.Status)
		}
		bytes := r.Downloaded
		if r.Uploaded > bytes {
			bytes = r.Uploaded
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Code, status, bytes, r.Duration, r.URL)
	}
	return tw.Flush()
}

// failures turns failed results into the command error.
func failures(results []transfer.Result) error {
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(results))
	}
	return nil
}
