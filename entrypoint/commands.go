package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"text2phenotype.com/ner/classifier"
	"text2phenotype.com/ner/corpus"
	"text2phenotype.com/ner/logger"
	"text2phenotype.com/ner/s3client"
	"text2phenotype.com/ner/types"
)

// localConfig supplies flag defaults from the same variables serve reads.
type localConfig struct {
	ModelDir string `envconfig:"NER_MODEL_DIR" default:""`
	Threads  int    `envconfig:"NER_THREADS" default:"1"`
}

type ensembleFlags struct {
	configFile string
	modelDir   string
}

func (f *ensembleFlags) register(cmd *cobra.Command, defaults localConfig) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "ensemble configuration YAML file")
	cmd.Flags().StringVar(&f.modelDir, "model-dir", defaults.ModelDir, "directory relative model paths are resolved against")
	_ = cmd.MarkFlagRequired("config")
}

func (f *ensembleFlags) load() (*classifier.Ensemble, error) {
	cfg, err := types.LoadConfiguration(f.configFile)
	if err != nil {
		return nil, err
	}
	ensLogger := logger.NewLogger("Ensemble").With().Str("config_name", cfg.Name).Logger()
	return classifier.NewEnsembleFromConfig(cfg, classifier.NewFileLoader(f.modelDir), classifier.WithEnsembleLogger(&ensLogger))
}

func newRootCommand() *cobra.Command {
	var defaults localConfig
	_ = envconfig.Process("", &defaults)

	root := &cobra.Command{
		Use:           "ner",
		Short:         "Ensemble sequence labeller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newEvalCommand(defaults), newKBestCommand(defaults), newLatticeCommand(defaults))
	return root
}

// readInput reads a local file, an s3:// object, or stdin for "-".
func readInput(ctx context.Context, cmd *cobra.Command, input string) ([]byte, error) {
	switch {
	case input == "-":
		return io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(input, s3client.URLScheme):
		client, err := s3client.New()
		if err != nil {
			return nil, err
		}
		defer client.Close()
		return client.Download(ctx, input)
	}
	return os.ReadFile(input)
}

func newEvalCommand(defaults localConfig) *cobra.Command {
	var (
		flags   ensembleFlags
		input   string
		output  string
		threads int
		scores  bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Label a column corpus and report entity scores",
		Long: `Labels every document of a column corpus (word first, gold label last, blank line or
-DOCSTART- between documents) and writes "word gold answer" lines. When the corpus has gold
labels a per type precision, recall and F1 table is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load()
			if err != nil {
				return err
			}
			data, err := readInput(cmd.Context(), cmd, input)
			if err != nil {
				return err
			}
			docs, err := corpus.ReadAll(bytes.NewReader(data), e.Name())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				out = file
			}
			writer := corpus.NewWriter(out)
			counts, stats, err := e.ClassifyAndCount(cmd.Context(), corpus.Channel(docs), writer.Write, threads)
			if err != nil {
				return err
			}
			if err := writer.Flush(); err != nil {
				return err
			}

			nerLogger := logger.NewLogger("Eval")
			nerLogger.Info().
				Int("documents", stats.Documents).
				Int("failed", stats.Failed).
				Int("tokens", stats.Tokens).
				Float64("tokens_per_second", stats.TokensPerSecond()).
				Msg("Finished labelling")
			if !scores || len(counts.Types()) == 0 {
				return nil
			}
			report := cmd.ErrOrStderr()
			if output != "-" {
				report = cmd.OutOrStdout()
			}
			return counts.Report(report)
		},
	}
	flags.register(cmd, defaults)
	cmd.Flags().StringVarP(&input, "input", "i", "-", "corpus file, s3:// URL or - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "labelled corpus file or - for stdout")
	cmd.Flags().IntVarP(&threads, "threads", "t", defaults.Threads, "classification threads")
	cmd.Flags().BoolVar(&scores, "scores", true, "print the entity score table when gold labels are present")
	return cmd
}

// forEachLine runs fn on every non-blank input line as a document of whitespace separated tokens.
func forEachLine(cmd *cobra.Command, fn func(doc *types.Document) error) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for n := 0; scanner.Scan(); {
		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}
		if err := fn(types.NewDocument(fmt.Sprintf("line-%d", n), words)); err != nil {
			return err
		}
		n++
	}
	return scanner.Err()
}

func newKBestCommand(defaults localConfig) *cobra.Command {
	var (
		flags ensembleFlags
		k     int
	)
	cmd := &cobra.Command{
		Use:   "kbest",
		Short: "Print the k best labellings of every input line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if k < 1 {
				return fmt.Errorf("k must be positive, got %d", k)
			}
			e, err := flags.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return forEachLine(cmd, func(doc *types.Document) error {
				scored, err := e.KBest(doc, k)
				if err != nil {
					return err
				}
				for _, sd := range scored {
					labels := sd.Document.Labels(types.SlotAnswer)
					if _, err := fmt.Fprintf(out, "%g\t%s\n", sd.Score, strings.Join(labels, " ")); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintln(out)
				return err
			})
		},
	}
	flags.register(cmd, defaults)
	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of labellings per line")
	return cmd
}

func newLatticeCommand(defaults localConfig) *cobra.Command {
	var flags ensembleFlags
	cmd := &cobra.Command{
		Use:   "lattice",
		Short: "Print the search graph of every input line in AT&T FSM text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return forEachLine(cmd, func(doc *types.Document) error {
				lattice, err := e.SearchGraph(doc)
				if err != nil {
					return err
				}
				if err := lattice.WriteFSM(out); err != nil {
					return err
				}
				_, err = fmt.Fprintln(out)
				return err
			})
		},
	}
	flags.register(cmd, defaults)
	return cmd
}
