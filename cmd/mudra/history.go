package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/ayusman/mudra/internal/store"
)

func historyCmd() *commander.Command {
	var (
		opts      options
		limit     int
		sessionID string
	)

	cmd := &commander.Command{
		UsageLine: "history [options]",
		Short:     "print recorded sessions, training runs and rounds",
		Long: `
history prints all-time totals and the most recent sessions. With -session
it prints that session's training runs and rounds.

ex:
 $ mudra history -n 5
 $ mudra history -session 6f1c...
`,
		Flag: *flag.NewFlagSet("mudra-history", flag.ExitOnError),
	}
	opts.register(&cmd.Flag)
	cmd.Flag.IntVar(&limit, "n", 10, "number of sessions or rounds to show")
	cmd.Flag.StringVar(&sessionID, "session", "", "session ID to show in detail")

	cmd.Run = func(cmd *commander.Command, args []string) error {
		cfg, err := opts.load()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if sessionID != "" {
			return printSession(os.Stdout, st, sessionID, limit)
		}
		return printOverview(os.Stdout, st, limit)
	}

	return cmd
}

func printOverview(out io.Writer, st *store.Store, limit int) error {
	totals, err := st.Rounds().Totals("")
	if err != nil {
		return err
	}
	sessions, err := st.Sessions().List(limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d rounds: you %d, computer %d, ties %d\n\n",
		totals.Rounds, totals.Human, totals.Computer, totals.Ties)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tDURATION\tROUNDS\tSCORE")
	for _, sess := range sessions {
		t, err := st.Rounds().Totals(sess.ID)
		if err != nil {
			return err
		}
		duration := "running"
		if sess.EndedAt != nil {
			duration = sess.EndedAt.Sub(sess.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d : %d\n",
			sess.ID, sess.StartedAt.Format(time.DateTime), duration, t.Rounds, t.Human, t.Computer)
	}
	return w.Flush()
}

func printSession(out io.Writer, st *store.Store, id string, limit int) error {
	sess, err := st.Sessions().GetByID(id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	runs, err := st.Runs().ListBySession(id)
	if err != nil {
		return err
	}
	rounds, err := st.Rounds().ListBySession(id, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Session %s, camera %d, extractor %s, started %s\n\n",
		sess.ID, sess.CameraID, sess.ModelVersion, sess.StartedAt.Format(time.DateTime))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tEXAMPLES\tBATCH\tEPOCHS\tFINAL LOSS\tCONVERGED")
	for _, r := range runs {
		loss := "-"
		if r.FinalLoss != nil {
			loss = fmt.Sprintf("%.5f", *r.FinalLoss)
		}
		fmt.Fprintf(w, "%s\t%s\t%d %v\t%d\t%d\t%s\t%v\n",
			r.ID, r.Status, r.Examples, r.LabelCounts, r.BatchSize, r.Epochs, loss, r.Converged)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROUND\tYOU\tCOMPUTER\tOUTCOME\tSCORE")
	for _, rd := range rounds {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d : %d\n",
			rd.Number, rd.HumanMove, rd.ComputerMove, rd.Outcome, rd.HumanScore, rd.ComputerScore)
	}
	return w.Flush()
}
