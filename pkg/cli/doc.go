/*
Package cli provides command-line helpers for the jddb command.

Output Formatting:

Results render as text, JSON or CSV. Types that implement Tabular render as
aligned columns in text mode and as rows in CSV mode; JSON always encodes the
value itself:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, result); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

Errors:

ConfigError and CommandError give command failures a stable prefix.
*/
package cli
