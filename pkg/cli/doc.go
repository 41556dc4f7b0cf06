/*
Package cli provides command-line helpers for the relay command.

Output Formatting:

Commands print results as text or JSON, selected with --output:

	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, status)

Values implementing Texter control their own text rendering.

Errors:

ConfigError, CommandError and OperationError give commands typed errors
that main turns into a non-zero exit status.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
	<-ctx.Done()
*/
package cli
