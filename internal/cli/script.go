package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/session"
)

// stepReport is the JSON form of one replayed step.
type stepReport struct {
	Index    int                  `json:"index"`
	Name     string               `json:"name,omitempty"`
	Kind     string               `json:"kind"`
	OK       bool                 `json:"ok"`
	Error    string               `json:"error,omitempty"`
	Protocol models.ProtocolState `json:"protocol"`
	Grid     models.GridState     `json:"grid"`
}

func newScriptCmd(opts *rootOptions) *cobra.Command {
	var showPanes bool
	cmd := &cobra.Command{
		Use:   "script <scenario-file>",
		Short: "Replay a scenario and print the grid after each step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			sc, err := session.LoadScenario(args[0])
			if err != nil {
				return err
			}
			logger := logging.Component("script").With().Str("scenario", filepath.Base(args[0])).Logger()
			ctx := logging.WithContext(cmd.Context(), logger)
			sess, err := openScenarioSession(ctx, cfg, sc)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			var reports []stepReport
			var writeErr error
			err = sess.Replay(ctx, sc, func(res session.StepResult) {
				report := newStepReport(res)
				if opts.jsonOutput {
					reports = append(reports, report)
					return
				}
				if writeErr == nil {
					writeErr = writeStep(out, report, showPanes)
				}
			})
			if err != nil {
				return err
			}
			if writeErr != nil {
				return writeErr
			}
			if opts.jsonOutput {
				return writeJSON(out, reports)
			}
			for _, n := range sess.Notifications() {
				if _, err := fmt.Fprintf(out, "[%s] %s: %s\n", n.Severity, n.Title, n.Message); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPanes, "panes", false, "print the pane table after every step")
	return cmd
}

func newStepReport(res session.StepResult) stepReport {
	report := stepReport{
		Index:    res.Index,
		Name:     res.Step.Name,
		Kind:     res.Step.Kind(),
		OK:       res.OK,
		Protocol: res.Protocol,
		Grid:     res.Grid,
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	return report
}

func writeStep(out io.Writer, r stepReport, showPanes bool) error {
	status := "ok"
	if !r.OK {
		status = "rejected"
		if r.Error != "" {
			status += ": " + r.Error
		}
	}
	name := r.Kind
	if r.Name != "" {
		name = r.Name + " (" + r.Kind + ")"
	}
	if _, err := fmt.Fprintf(out, "%d. %s: %s  protocol=%s#%d layout=%s panes=%d\n",
		r.Index+1, name, status, r.Protocol.ProtocolID, r.Protocol.StageIndex,
		r.Grid.Layout.Label(), r.Grid.NumPanes()); err != nil {
		return err
	}
	if !showPanes {
		return nil
	}
	return writePaneTable(out, r.Grid)
}

func writePaneTable(out io.Writer, state models.GridState) error {
	rows := make([][]string, 0, len(state.Panes))
	for i, p := range state.Panes {
		content := strings.Join(p.ContentRefs, ",")
		if content == "" {
			content = "-"
		}
		rows = append(rows, []string{
			p.Label,
			p.ID,
			p.PositionID,
			content,
			formatYesNo(i == state.ActivePaneIndex),
		})
	}
	return writeTable(out, []string{"PANE", "ID", "POSITION", "CONTENT", "ACTIVE"}, rows)
}
