package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"homework-mentor/api/internal/config"
	"homework-mentor/api/internal/i18n"
	"homework-mentor/api/internal/logger"
	"homework-mentor/api/internal/solver"
	"homework-mentor/api/internal/submission"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mentor",
		Short:         "Homework Mentor command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newSolveCmd())
	return rootCmd
}

type solveFlags struct {
	file    string
	text    string
	lang    string
	subject string
	api     string
	engine  string
	verbose bool
}

func newSolveCmd() *cobra.Command {
	var f solveFlags
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Send a question or a homework file and print the solution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "PNG, JPEG or PDF file with the question")
	cmd.Flags().StringVarP(&f.text, "text", "t", "", "question text")
	cmd.Flags().StringVarP(&f.lang, "lang", "l", "", "language tag (en, id, es); detected when empty")
	cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "subject, e.g. math")
	cmd.Flags().StringVar(&f.api, "api", "", "solving service URL (default $API_URL)")
	cmd.Flags().StringVar(&f.engine, "engine", "", "engine name forwarded to the service")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	cmd.MarkFlagsMutuallyExclusive("file", "text")
	cmd.MarkFlagsOneRequired("file", "text")
	return cmd
}

func runSolve(cmd *cobra.Command, f solveFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg := config.LoadClient()
	level := "warn"
	if f.verbose {
		level = "debug"
	}
	log := logger.New(cmd.ErrOrStderr(), cfg.LogFormat, level)
	for _, w := range cfg.Warnings {
		log.Warn("config", "problem", w)
	}

	lang := f.lang
	if lang == "" {
		lang = cfg.Language
	}
	api := f.api
	if api == "" {
		api = cfg.APIURL
	}
	engine := f.engine
	if engine == "" {
		engine = cfg.Engine
	}

	loc := i18n.Bootstrap(ctx, i18n.MustLoadCatalog(), lang, i18n.NewResolver(cfg.GeoLookupURL, log))
	log.Debug("locale resolved", "tag", loc.Tag)

	ctrl := submission.NewController(
		solver.New(api, solver.WithEngine(engine), solver.WithLogger(log)),
		submission.WithLocalizer(loc),
		submission.WithLogger(log),
	)
	ctrl.Observe(progressPrinter(out, loc))

	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return err
		}
		err = ctrl.SelectFile(submission.FileInput{Bytes: data, Filename: filepath.Base(f.file)})
		if errors.Is(err, submission.ErrUnsupportedType) {
			return errors.New(loc.T(i18n.KeyUnsupportedType))
		}
		if err != nil {
			return err
		}
	} else {
		ctrl.SelectText(f.text)
	}

	if err := ctrl.Submit(ctx, loc.Tag, submission.WithSubject(f.subject)); err != nil {
		if errors.Is(err, submission.ErrValidationSkip) {
			return errors.New(loc.T(i18n.KeyEmptyInput))
		}
		return errors.New(ctrl.State().Message)
	}

	st := ctrl.State()
	fmt.Fprintf(out, "\n%s:\n\n%s\n", loc.T(i18n.KeySolution), st.Solution)
	return nil
}

// progressPrinter writes one line per distinct upload step.
func progressPrinter(w io.Writer, loc i18n.Locale) func(submission.Snapshot) {
	last := -1
	return func(s submission.Snapshot) {
		if s.State.Phase != submission.InProgress {
			last = -1
			return
		}
		pct := s.State.Percent
		if pct == last {
			return
		}
		last = pct
		if pct >= 100 {
			fmt.Fprintln(w, loc.T(i18n.KeyProcessing))
			return
		}
		fmt.Fprintf(w, "%s %d%%\n", loc.T(i18n.KeyUploading), pct)
	}
}
