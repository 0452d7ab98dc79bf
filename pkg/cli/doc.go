/*
Package cli provides command-line utilities for the tollgate command:
output formatting, progress reporting for simulation runs, and signal
handling.

Output Formatting:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, report); err != nil {
		return err
	}

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stdout)
	progress.Start(total)
	for i := range work {
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

	ctx := cli.SetupSignalHandler()
	// ctx is cancelled on SIGINT or SIGTERM
*/
package cli
