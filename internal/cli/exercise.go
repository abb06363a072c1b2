package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/exercise"
	"github.com/spf13/cobra"
)

var (
	exerciseSpeed   float64
	exerciseContent string
)

func init() {
	cmd := &cobra.Command{
		Use:       "exercise <breathing|movement|affirmation>",
		Short:     "Run a guided exercise in the terminal",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.ToolBreathing), string(domain.ToolMovement), string(domain.ToolAffirmation)},
		RunE:      runExercise,
	}
	cmd.Flags().Float64Var(&exerciseSpeed, "speed", 1, "Playback speed multiplier for timed exercises")
	cmd.Flags().StringVar(&exerciseContent, "content", "", "YAML file overriding the built-in exercise content")

	RootCmd.AddCommand(cmd)
}

func loadContent() (*exercise.Content, error) {
	if exerciseContent == "" {
		return exercise.DefaultContent(), nil
	}
	data, err := os.ReadFile(exerciseContent)
	if err != nil {
		return nil, fmt.Errorf("read exercise content: %w", err)
	}
	return exercise.ParseContent(data)
}

func runExercise(cmd *cobra.Command, args []string) error {
	if exerciseSpeed <= 0 {
		return fmt.Errorf("--speed must be > 0")
	}
	content, err := loadContent()
	if err != nil {
		return err
	}

	tool := domain.Tool(args[0])
	p, err := exercise.New(tool, content, nil)
	if err != nil {
		return err
	}
	plan, err := content.Plan(tool, p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, plan.Title)
	if plan.Hint != "" {
		fmt.Fprintln(out, plan.Hint)
	}
	fmt.Fprintf(out, "> %s\n", p.Current().Label)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	printBoundary := func(b exercise.Boundary) {
		if b.Completed {
			fmt.Fprintln(out, "Done! Great job.")
			return
		}
		if b.Cycle > 0 {
			fmt.Fprintf(out, "> %s (cycle %d)\n", b.Label, b.Cycle+1)
			return
		}
		fmt.Fprintf(out, "> %s\n", b.Label)
	}

	if tool == domain.ToolAffirmation {
		fmt.Fprintln(out, "(press Enter for the next one)")
		if err := stepThrough(cmd.InOrStdin(), p, printBoundary); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n%s\n", plan.FinalTitle, plan.FinalText)
	} else {
		interval := time.Duration(float64(content.Tick) / exerciseSpeed)
		if err := exercise.RunAt(ctx, p, interval, content.Tick, printBoundary); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "You earned %d stars!\n", content.StarsPerCompletion)
	return nil
}

// stepThrough calls Next once per input line until p completes.
func stepThrough(in io.Reader, p exercise.Progression, onBoundary func(exercise.Boundary)) error {
	scanner := bufio.NewScanner(in)
	for !p.Done() {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.ErrUnexpectedEOF
		}
		for _, b := range p.Next() {
			onBoundary(b)
		}
	}
	return nil
}
