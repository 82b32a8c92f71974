// Package app wires the swap engine into a cobra command tree. Each
// command loads configuration, builds the venue clients it needs, and
// emits a versioned envelope on stdout.
package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/swap-engine/internal/chaindata"
	"github.com/ggonzalez94/swap-engine/internal/config"
	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/httpx"
	"github.com/ggonzalez94/swap-engine/internal/out"
	"github.com/ggonzalez94/swap-engine/internal/telemetry"
	"github.com/ggonzalez94/swap-engine/internal/venues"
	"github.com/ggonzalez94/swap-engine/internal/venues/oneinch"
	"github.com/ggonzalez94/swap-engine/internal/venues/openocean"
	"github.com/ggonzalez94/swap-engine/internal/venues/paraswap"
	"github.com/ggonzalez94/swap-engine/internal/venues/zerox"
	"github.com/ggonzalez94/swap-engine/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	log         *logrus.Logger
	root        *cobra.Command
	lastCommand string

	httpClient *httpx.Client
	chainData  *chaindata.Client
	providers  []venues.Provider
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if err == nil {
		return 0
	}

	state.renderError("", err)
	return engerr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Multi-venue swap quote and execution CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return engerr.Wrap(engerr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			s.log = telemetry.NewLogger()

			if s.httpClient == nil {
				s.httpClient = httpx.New(settings.Timeout, settings.Retries)
				s.chainData = chaindata.New(s.httpClient, settings.ChainDataBase, settings.ChainDataKey)
				s.providers = []venues.Provider{
					oneinch.New(s.httpClient, settings.OneInchAPIKey),
					zerox.New(s.httpClient, settings.ZeroXAPIKey),
					paraswap.New(s.httpClient, settings.ParaswapAPIKey),
					openocean.New(s.httpClient),
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return engerr.Wrap(engerr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Venue request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per venue request")
	cmd.PersistentFlags().StringVar(&s.flags.EnableVenues, "enable-venues", "", "Allowlist venues (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newExecuteCommand())
	cmd.AddCommand(s.newVenuesCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, meta out.EnvelopeMeta) error {
	meta.RequestID = newRequestID()
	meta.Timestamp = s.runner.now().UTC()
	meta.Command = commandPath
	env := out.Envelope{
		Version:  out.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     meta,
	}
	return out.Render(s.runner.stdout, env, out.Options{
		Mode:         s.settings.OutputMode,
		SelectFields: s.settings.SelectFields,
		ResultsOnly:  s.settings.ResultsOnly,
	})
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := engerr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if engErr, ok := engerr.As(err); ok {
		message = engErr.Message
		if engErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", engErr.Message, engErr.Cause)
		}
		switch engErr.Code {
		case engerr.CodeUsage:
			typ = "usage_error"
		case engerr.CodeAuth:
			typ = "auth_error"
		case engerr.CodeRateLimited:
			typ = "rate_limited"
		case engerr.CodeUnavailable:
			typ = "venue_unavailable"
		case engerr.CodeUnsupported:
			typ = "unsupported"
		case engerr.CodeExpired:
			typ = "quote_expired"
		case engerr.CodeBlocked:
			typ = "venue_blocked"
		case engerr.CodeSimulation:
			typ = "simulation_failed"
		case engerr.CodeVerification:
			typ = "verification_failed"
		case engerr.CodeExecution:
			typ = "execution_failed"
		case engerr.CodeSigner:
			typ = "signer_error"
		}
	}

	// Error envelopes ignore projection so the error body always survives.
	outputMode := s.settings.OutputMode
	if outputMode == "" {
		outputMode = "json"
	}
	env := out.Envelope{
		Version: out.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &out.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: out.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, out.Options{Mode: outputMode})
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := engerr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return engerr.Wrap(engerr.CodeUsage, "invalid command input", err)
	}
	return engerr.Wrap(engerr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
