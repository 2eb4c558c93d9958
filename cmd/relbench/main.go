// relbench transfers a stream over simulated links of varying quality and
// prints how the channel coped.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"
)

func main() {
	size := flag.Int("size", 1024*1024, "bytes to transfer per scenario")
	seed := flag.Int64("seed", 1, "seed of the simulated links")
	maxTicks := flag.Int("max-ticks", 200000, "give up a scenario after this many ticks")
	verbose := flag.Bool("v", false, "log channel events")
	flag.Parse()

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	pterm.Info.Println(fmt.Sprintf("Transferring %d bytes per scenario", *size))
	pterm.Println()

	table := pterm.TableData{
		{"Scenario", "Done", "Ticks", "Sim time", "KiB/s", "Resent KiB", "Forced KiB", "Refused", "Overhead", "Link drops"},
	}
	failed := false
	for _, sc := range defaultScenarios(*seed) {
		r, err := runScenario(sc, *size, *maxTicks, logger)
		if err != nil {
			pterm.Error.Println(fmt.Sprintf("%s: %v", sc.Name, err))
			failed = true
			continue
		}
		failed = failed || !r.Completed
		table = append(table, []string{
			r.Scenario,
			fmt.Sprintf("%t", r.Completed),
			fmt.Sprintf("%d", r.Ticks),
			r.Elapsed.String(),
			fmt.Sprintf("%.1f", r.Throughput(*size)/1024),
			fmt.Sprintf("%.1f", float64(r.Client.ResendBytes)/1024),
			fmt.Sprintf("%.1f", float64(r.Client.ForcedResendBytes)/1024),
			fmt.Sprintf("%d", r.Client.Refused),
			fmt.Sprintf("%.1f%%", 100*r.Client.Overhead()),
			fmt.Sprintf("%d", r.Link.Dropped),
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		log.WithError(err).Fatal("Rendering results failed")
	}
	if failed {
		os.Exit(1)
	}
}
