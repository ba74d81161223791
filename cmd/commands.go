package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"translink/downloader"
	"translink/internal"
	"translink/language"
	"translink/translator"
	"translink/utils"
)

var (
	targetLanguage string
	sourceLanguage string
	premium        bool
	noWait         bool
	noRelocate     bool
)

var fileCmd = &cobra.Command{
	Use:   "file <PATH>",
	Short: "Translate a document and download the result",
	Long: `Upload a document, wait for the translationComplete event and download
the translated file. Without a live event channel the upload still happens
but the result has to be fetched later with 'translink download'.

Examples:
  translink file report.pdf -t vi
  translink file slides.pptx -t Japanese --premium
  translink file notes.docx --no-wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := translator.New(config)
		if err != nil {
			return err
		}
		defer client.Close()

		file := internal.FileDescriptor{URI: args[0]}
		sessionID := client.Open(ctx)
		internal.LogInfo("Session %s (%s)", sessionID, client.Status())

		if noWait {
			job, err := client.SubmitFile(ctx, file, targetLanguage, premium)
			if err != nil {
				return err
			}
			return printResult(job, func() {
				fmt.Printf("Submitted %s as job %s (session %s)\n", job.FileName, orDash(job.JobID), job.SessionID)
			})
		}

		opts, progress := downloadOptions()
		outcome, err := client.TranslateFile(ctx, file, targetLanguage, premium, opts)
		if err != nil {
			if outcome != nil && outcome.Job != nil && !config.QuietMode {
				fmt.Fprintf(os.Stderr, "Submitted %s as job %s\n", outcome.Job.FileName, orDash(outcome.Job.JobID))
			}
			return err
		}
		if progress != nil && outcome.Download != nil {
			progress.SetFilename(outcome.Completed.FileName)
			progress.Finish()
		}

		if outcome.Failed != nil {
			printResult(outcome, func() {
				fmt.Printf("Translation failed: %s\n", outcome.Failed.Reason)
			})
			return internal.NewAPIError(internal.ErrServer, 0, outcome.Failed.Reason)
		}
		return printResult(outcome, func() {
			fmt.Printf("Translated %s -> %s\n", outcome.Job.FileName, outcome.Download.Path)
		})
	},
}

var textCmd = &cobra.Command{
	Use:   "text <TEXT>...",
	Short: "Translate a piece of text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := translator.New(config)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.TranslateText(ctx, strings.Join(args, " "), targetLanguage)
		if err != nil {
			return err
		}
		return printResult(result, func() { fmt.Println(result.TranslatedText) })
	},
}

var imageCmd = &cobra.Command{
	Use:   "image <PATH>",
	Short: "Translate the text found in a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := translator.New(config)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.TranslateImage(ctx, internal.FileDescriptor{URI: args[0]}, targetLanguage)
		if err != nil {
			return err
		}
		return printResult(result, func() {
			fmt.Println(result.TranslatedText)
			for _, seg := range result.Segments {
				fmt.Printf("  %q -> %q at (%.0f%%, %.0f%%)\n", seg.Original, seg.Translated, seg.Position.X, seg.Position.Y)
			}
		})
	},
}

var audioCmd = &cobra.Command{
	Use:   "audio <PATH>",
	Short: "Transcribe and translate a voice recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := translator.New(config)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.TranslateAudio(ctx, internal.FileDescriptor{URI: args[0]}, sourceLanguage, targetLanguage)
		if err != nil {
			return err
		}
		return printResult(result, func() {
			if result.OriginalText != "" {
				fmt.Printf("Original:   %s\n", result.OriginalText)
			}
			fmt.Printf("Translated: %s\n", result.TranslatedText)
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <FILE_NAME>",
	Short: "Download a translated file by name",
	Long: `Download a translated file reported by a translationComplete event.
An interrupted download resumes from the cached .part file when the
command is run again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := translator.New(config)
		if err != nil {
			return err
		}
		defer client.Close()

		opts, progress := downloadOptions()
		result, err := client.Download(ctx, args[0], opts)
		if err != nil {
			if ctx.Err() != nil && !config.QuietMode {
				state := "Download cancelled."
				if progress != nil {
					if _, _, pct := progress.GetCurrentStats(); pct > 0 {
						state = fmt.Sprintf("Download cancelled at %.0f%%.", pct)
					}
				}
				fmt.Fprintf(os.Stderr, "%s Run 'translink download %s' to resume.\n", state, args[0])
			}
			return err
		}
		if progress != nil {
			progress.SetFilename(args[0])
			progress.Finish()
		}
		return printResult(result, func() {
			fmt.Printf("Saved %s (%s, %s)\n", result.Path, result.MIMEType, utils.FormatBytes(result.Size))
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Open the event channel and report its state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := translator.New(config)
		if err != nil {
			return err
		}
		defer client.Close()

		id := client.Open(ctx)
		status := struct {
			SessionID  string `json:"session_id"`
			Status     string `json:"status"`
			APIURL     string `json:"api_url"`
			ChannelURL string `json:"channel_url"`
		}{id, client.Status().String(), config.APIBaseURL, config.ChannelURL}

		return printResult(status, func() {
			fmt.Printf("Session:  %s\n", status.SessionID)
			fmt.Printf("Status:   %s\n", status.Status)
			fmt.Printf("API:      %s\n", status.APIURL)
			fmt.Printf("Channel:  %s\n", status.ChannelURL)
		})
	},
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResult(language.Sources, func() {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tTARGET")
			for _, l := range language.Sources {
				fmt.Fprintf(w, "%s\t%s\t%v\n", l.Code, l.Name, language.IsTarget(l.Code))
			}
			w.Flush()
		})
	},
}

// downloadOptions builds the per-download settings from the flags. The
// tracker is nil when no progress bar is drawn.
func downloadOptions() (*downloader.Options, *utils.ProgressTracker) {
	opts := &downloader.Options{
		RateLimit:      config.RateLimit,
		SkipRelocation: noRelocate,
	}
	if !showProgress() {
		return opts, nil
	}
	tracker := utils.NewProgressTracker(os.Stderr, false)
	opts.OnBytes = tracker.Observe
	return opts, tracker
}

// printResult prints v as JSON with --json, otherwise runs text
func printResult(v any, text func()) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	for _, c := range []*cobra.Command{fileCmd, textCmd, imageCmd, audioCmd} {
		c.Flags().StringVarP(&targetLanguage, "target", "t", "", "Target language code or name (see 'translink languages')")
	}
	audioCmd.Flags().StringVarP(&sourceLanguage, "source", "s", "", "Spoken language code or name (default auto)")

	fileCmd.Flags().BoolVar(&premium, "premium", false, "Submit as a premium user")
	fileCmd.Flags().BoolVar(&noWait, "no-wait", false, "Only upload, do not wait for the result")
	for _, c := range []*cobra.Command{fileCmd, downloadCmd} {
		c.Flags().BoolVar(&noRelocate, "no-relocate", false, "Keep the download in the cache directory")
	}
}
