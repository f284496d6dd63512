//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/results"
)

type resultsCmd struct {
	logCmd
	optsCmd
	Scenario string `short:"s" long:"scenario" description:"only list results for this scenario"`
}

func (cmd *resultsCmd) Execute(_ []string) error {
	if cmd.opts.DBPath == "" {
		return errors.New("no results database path (see --db)")
	}

	store, err := results.Open(cmd.log, cmd.opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Scenario)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.log.Info("no recorded results")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Scenario\tStart\tDuration\tResult\tDigest")
	for _, entry := range entries {
		result := "PASS"
		if !entry.Passed {
			result = fmt.Sprintf("FAIL (%d)", len(entry.Failures))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			entry.Scenario,
			entry.Start.Format("2006-01-02 15:04:05"),
			entry.Duration().Round(time.Second),
			result,
			entry.ConfigDigest)
	}
	return tw.Flush()
}
