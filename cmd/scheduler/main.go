package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Scheduler failed:", err)
		// cron-job.org and kubernetes CronJobs mark the run failed on a non-zero exit
		os.Exit(1)
	}
}
