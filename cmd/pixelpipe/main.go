package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/config"
	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/internal/pipeline"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

var (
	appVersion = "0.1.0"

	cfgFile        string
	source         string
	outputDir      string
	format         string
	quality        int
	jobs           int
	conflictPolicy string
	outputNaming   string
	extensions     []string
	logFile        string
	logJSON        bool
	verifyOutput   bool
	historyLimit   int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		if hint := errors.FlattenHints(err); hint != "" {
			pterm.Info.Println(hint)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 when the batch could not run at all and 1 for any other error.
func exitCode(err error) int {
	if errors.IsFatal(err) {
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "pixelpipe",
	Short: "Batch-convert a folder of images to one format",
	Long: `PixelPipe converts every HEIC, PNG, JPEG, BMP, GIF and TIFF image in a
folder into a single output format, in parallel, writing the results to a
converted_images folder next to the originals.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [source]",
	Short: "Convert all images in a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPipeline,
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported output formats",
	Run: func(cmd *cobra.Command, args []string) {
		for _, f := range codec.Formats {
			fmt.Printf("%-5s .%s\n", f, f.Extension())
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	RunE:  showHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(appVersion)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	runCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	runCmd.Flags().StringVarP(&source, "source", "s", "", "folder with images to convert")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output folder (default <source>/converted_images)")
	runCmd.Flags().StringVarP(&format, "format", "f", "", "output format: PNG, JPEG, BMP, GIF, TIFF")
	runCmd.Flags().IntVarP(&quality, "quality", "q", 0, "JPEG quality 1-100 (default 85)")
	runCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "number of concurrent workers (0=auto)")
	runCmd.Flags().StringVar(&conflictPolicy, "conflict", "", "existing output policy: overwrite, skip, rename")
	runCmd.Flags().StringVar(&outputNaming, "naming", "", "output folder naming: fixed, timestamp")
	runCmd.Flags().StringSliceVarP(&extensions, "include-ext", "e", nil, "input extensions to include")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "log file path")
	runCmd.Flags().BoolVar(&logJSON, "log-json", false, "write JSON logs")
	runCmd.Flags().BoolVar(&verifyOutput, "verify", false, "decode each output after writing")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
}

// buildConfig layers flags over the config file (or defaults) and validates.
func buildConfig(args []string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if len(args) == 1 {
		cfg.Source = args[0]
	}
	if source != "" {
		cfg.Source = source
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if format != "" {
		cfg.Format = format
	}
	if quality > 0 {
		cfg.Quality = quality
	}
	if jobs > 0 {
		cfg.Jobs = jobs
	}
	if conflictPolicy != "" {
		cfg.ConflictPolicy = types.ConflictPolicy(conflictPolicy)
	}
	if outputNaming != "" {
		cfg.OutputNaming = types.OutputNaming(outputNaming)
	}
	if len(extensions) > 0 {
		cfg.Extensions = extensions
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logJSON {
		cfg.LogJSON = true
	}
	if verifyOutput {
		cfg.Verify = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(args)
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create pipeline")
	}
	defer p.Close()

	// Ctrl-C stops dispatching; conversions already running finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := newProgressBar()
	p.SetProgressCallback(bar.handle)

	summary, err := p.Run(ctx)
	bar.stop()
	if err != nil {
		return err
	}

	switch types.StatusOf(*summary) {
	case types.RunStatusSuccess:
		pterm.Success.Printf("Converted %d files into %s\n", summary.Succeeded, summary.OutputDir)
	case types.RunStatusPartial:
		pterm.Warning.Printf("%d converted, %d failed\n", summary.Succeeded, summary.Failed)
	case types.RunStatusCancelled:
		pterm.Warning.Printf("Cancelled after %d of %d files\n", summary.Completed, summary.TotalFiles)
	}
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	m, err := config.NewUserDataManager()
	if err != nil {
		return err
	}
	history, err := m.LoadRunHistory()
	if err != nil {
		return err
	}
	if len(history.Entries) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}

	data := pterm.TableData{{"When", "Status", "Format", "Files", "Failed", "Duration", "Source"}}
	for i, e := range history.Entries {
		if i >= historyLimit {
			break
		}
		data = append(data, []string{
			e.CreatedAt.Format("2006-01-02 15:04"),
			string(e.Status),
			e.Config.Format,
			fmt.Sprint(e.Summary.TotalFiles),
			fmt.Sprint(e.Summary.Failed),
			e.Summary.Duration.Round(time.Millisecond).String(),
			e.Config.Source,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
