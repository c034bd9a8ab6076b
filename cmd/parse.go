package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/pkg/file"
)

// newParseCommand reads an SRT or WebVTT file and prints it back as normalized SRT.
func newParseCommand() *cobra.Command {
	var (
		detect bool
		write  bool
	)

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a subtitle file and print the cues as SRT",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read subtitles: %w", err)
			}
			cues := subtitle.ParseTrack(string(raw))
			if len(cues) == 0 {
				return fmt.Errorf("no cues found")
			}

			if detect {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d cues, language %s\n", len(cues), subtitle.DetectLanguage(cues))
			}
			if !write {
				return subtitle.WriteSRT(cmd.OutOrStdout(), cues)
			}

			if len(args) == 0 || args[0] == "-" {
				return fmt.Errorf("--write needs a file argument")
			}
			target := file.ReplaceExt(args[0], "srt")
			if target == args[0] {
				return fmt.Errorf("%s is already an SRT file", args[0])
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if err := subtitle.WriteSRT(out, cues); err != nil {
				_ = out.Close()
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", target)
			return out.Close()
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Write the SRT next to the input file instead of stdout")
	cmd.Flags().BoolVar(&detect, "detect", false, "Report the cue count and detected language on stderr")
	return cmd
}
