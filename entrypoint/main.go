// Command ner hosts the ensemble labeller as a queue worker and REST service, and evaluates
// ensembles on local or S3 corpora.
package main

import (
	"os"

	"text2phenotype.com/ner/logger"
)

func main() {
	logger.SetupLogging()
	if err := newRootCommand().Execute(); err != nil {
		nerLogger := logger.NewLogger("Main")
		nerLogger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
