package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/messaging"
	"github.com/BTreeMap/PostPipe/internal/models"
)

const cliSessionID = "cli"

// buildRequestInput returns the campaign brief from -brief, or from the -message
// flags when no brief file is given.
func buildRequestInput(flags Flags) (models.RequestInput, error) {
	if *flags.brief != "" {
		return models.LoadRequestFile(*flags.brief)
	}
	useEmojis := !*flags.noEmojis
	return models.RequestInput{
		CampaignMessage: *flags.message,
		TargetAudience:  *flags.audience,
		Tone:            *flags.tone,
		UseEmojis:       &useEmojis,
	}, nil
}

// runOneShot runs a single campaign in the foreground and writes the final result
// as JSON. In interactive mode feedback lines are read from in.
func runOneShot(ctx context.Context, flags Flags, be flow.Backend, in io.Reader, out io.Writer) error {
	input, err := buildRequestInput(flags)
	if err != nil {
		return err
	}
	req, err := input.ToRequest()
	if err != nil {
		return err
	}
	maxIter := *flags.maxIterations
	if input.MaxIterations > 0 {
		maxIter = input.MaxIterations
	}
	m, err := flow.NewMachine(be, flow.WithMaxIterations(maxIter))
	if err != nil {
		return err
	}

	var result *models.FinalResult
	if *flags.interactive {
		result, err = runInteractive(ctx, m, req, in, out)
	} else {
		st := m.NewRunState(req)
		err = m.Run(ctx, st)
		result = st.FinalResult
	}
	if err != nil {
		return err
	}
	return writeResult(*flags.output, result, out)
}

// runInteractive drives a Runner from stdin. An empty line, an approval word or
// end of input accepts the current posts.
func runInteractive(ctx context.Context, m *flow.Machine, req models.Request, in io.Reader, out io.Writer) (*models.FinalResult, error) {
	r := flow.NewRunner(m)
	outcome, err := r.StartAndRunUntilFeedback(ctx, req)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(in)
	for outcome.Status != flow.OutcomeCompleted {
		fmt.Fprintln(out, messaging.FormatOutcome(cliSessionID, outcome))
		if !outcome.CanContinue {
			outcome, err = r.Finalize(ctx)
			if err != nil {
				return nil, err
			}
			continue
		}
		fmt.Fprint(out, "\nfeedback> ")
		line := ""
		if scanner.Scan() {
			line = scanner.Text()
		}
		if messaging.IsApproval(line) {
			outcome, err = r.Finalize(ctx)
		} else {
			outcome, err = r.SupplyFeedback(ctx, line)
		}
		if err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(out, "Feedback rejected: %v\n", verr)
				outcome = r.Current()
				continue
			}
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("runInteractive: failed to read feedback", "error", err)
	}
	fmt.Fprintln(out, messaging.FormatOutcome(cliSessionID, outcome))
	return outcome.Result, nil
}

// writeResult writes the result as indented JSON to path, or to out when path is empty.
func writeResult(path string, result *models.FinalResult, out io.Writer) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result to %s: %w", path, err)
	}
	slog.Info("Result written", "path", path)
	return nil
}
