package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"antcolony_demo/libs/utils"
)

func main() {
	var (
		rounds  int
		timeout time.Duration
		verbose bool
	)

	flagSet := flag.NewFlagSet("ant-bench", flag.ExitOnError)
	flagSet.IntVar(&rounds, "r", 10, "每个节点发起的提案数")
	flagSet.DurationVar(&timeout, "T", 60*time.Second, "等待一轮结束的时间")
	flagSet.BoolVar(&verbose, "v", false, "输出debug日志")

	flagSet.Usage = func() {
		fmt.Println(`Ant colony consensus benchmarking tool.

Usage:
	ant-bench [-r 10] [-T 60s] [-v] [node1:26657,node2:26657]

Examples:
	ant-bench localhost:26657`)
		fmt.Println("Flags:")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		os.Exit(1)
	}

	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	if verbose {
		logger = log.NewFilter(logger, log.AllowDebug())
	} else {
		logger = log.NewFilter(logger, log.AllowInfo())
	}

	targets := strings.Split(flagSet.Arg(0), ",")
	p := newProposer(targets, rounds, timeout)
	p.SetLogger(logger)

	start := time.Now()
	if err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	results, rejected := p.Results()
	printStatistics(results, rejected, time.Since(start))
}

func printStatistics(results []roundResult, rejected int, took time.Duration) {
	outcomes := map[string]int{}
	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		outcomes[r.outcome]++
		latencies = append(latencies, r.latency.Seconds())
	}
	s := utils.Summarize(latencies...)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', 0)
	fmt.Fprintf(w, "Stats\tAvg\tMedian\tMin\tMax\n")
	fmt.Fprintf(w, "Round latency (s)\t%.3f\t%.3f\t%.3f\t%.3f\n", s.Avg, s.Median, s.Min, s.Max)
	fmt.Fprintln(w)
	for outcome, n := range outcomes {
		fmt.Fprintf(w, "%s\t%d\n", outcome, n)
	}
	fmt.Fprintf(w, "Rejected\t%d\n", rejected)
	fmt.Fprintf(w, "Total time\t%v\n", took)
	w.Flush()
}
