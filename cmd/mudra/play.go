package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/game"
)

const lossTemplate pb.ProgressBarTemplate = `{{counters .}} {{bar .}} {{percent .}} loss {{string . "loss"}}`

func playCmd() *commander.Command {
	var opts options

	cmd := &commander.Command{
		UsageLine: "play [options]",
		Short:     "capture, train and play in the terminal",
		Long: `
play walks through one session in the terminal: a capture burst per move,
a training run, then game rounds until interrupted.

ex:
 $ mudra play -camera 1 -epochs 30
`,
		Flag: *flag.NewFlagSet("mudra-play", flag.ExitOnError),
	}
	opts.register(&cmd.Flag)

	cmd.Run = func(cmd *commander.Command, args []string) error {
		cfg, err := opts.load()
		if err != nil {
			return err
		}

		e, err := newEnv(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signalContext()
		defer stop()

		fmt.Println("Starting camera and loading the feature extractor...")
		if err := e.session.Setup(ctx); err != nil {
			return fmt.Errorf("setup: %w", err)
		}

		lines := readLines(os.Stdin)
		if err := captureAll(ctx, e.session, lines); err != nil {
			return err
		}
		if err := train(ctx, e.session); err != nil {
			return err
		}
		return playRounds(ctx, e.session)
	}

	return cmd
}

// readLines delivers stdin lines until EOF.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- strings.TrimSpace(sc.Text())
		}
	}()
	return out
}

func prompt(ctx context.Context, lines <-chan string, format string, args ...any) (string, error) {
	fmt.Printf(format, args...)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// captureAll records at least one burst per move. The user may repeat a
// burst before moving on.
func captureAll(ctx context.Context, s *app.Session, lines <-chan string) error {
	burst := s.Settings().CaptureBurst

	for label := range game.NumMoves {
		move := game.Move(label)
		captured := 0
		for {
			msg := "Show %s and press Enter to capture %d examples"
			if captured > 0 {
				msg += " (or n for the next move)"
			}
			answer, err := prompt(ctx, lines, msg+": ", strings.ToUpper(move.String()), burst)
			if err != nil {
				return err
			}
			if captured > 0 && answer == "n" {
				break
			}

			n, err := s.CaptureExamples(ctx, label)
			captured += n
			if err != nil {
				return fmt.Errorf("capture %s: %w", move, err)
			}
			fmt.Printf("  %s: %d examples\n", move, s.Examples()[label])
		}
	}
	return nil
}

// train runs one training pass, drawing its progress from the loss sequence.
func train(ctx context.Context, s *app.Session) error {
	st := s.Status()
	cfg := s.Settings()

	batch := int(float64(st.Examples) * cfg.BatchFraction)
	total := 0
	if batch > 0 {
		total = cfg.Epochs * ((st.Examples + batch - 1) / batch)
	}

	seq, err := s.Train(ctx)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	fmt.Printf("Training on %d examples\n", st.Examples)
	bar := lossTemplate.Start(total)
	for bl, err := range seq {
		if err != nil {
			bar.Finish()
			return fmt.Errorf("train: %w", err)
		}
		bar.Set("loss", fmt.Sprintf("%.5f", bl.Loss))
		bar.Increment()
	}
	bar.Finish()

	if last := s.Status().LastRun; last != nil {
		fmt.Printf("Training %s, final loss %.5f\n", last.Status, last.LastLoss)
	}
	return nil
}

// playRounds plays until ctx is cancelled, printing each round.
func playRounds(ctx context.Context, s *app.Session) error {
	s.Bus().Subscribe(events.SinkFunc(func(ev events.Event) {
		switch data := ev.Data.(type) {
		case events.TickData:
			if data.Remaining > 0 {
				fmt.Printf("%d... ", data.Remaining)
			}
		case events.RoundData:
			fmt.Printf("\nRound %d: you %s, computer %s, %s. Score %d : %d\n",
				data.Number, data.Human, data.Computer, verdict(data.Outcome),
				data.HumanScore, data.ComputerScore)
		}
	}))

	if err := s.Play(ctx); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	fmt.Println("Playing. Press Ctrl-C to stop.")

	<-ctx.Done()
	s.StopGame()

	score := s.Score()
	fmt.Printf("\nFinal score: you %d, computer %d\n", score.Human, score.Computer)
	log.Printf("Session %s finished", s.ID())
	return nil
}

func verdict(outcome string) string {
	switch outcome {
	case game.HumanWins.String():
		return "you win"
	case game.ComputerWins.String():
		return "computer wins"
	default:
		return "tie"
	}
}
