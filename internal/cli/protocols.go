package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/hangview/internal/protocol"
)

// protocolSummary is the JSON form of a protocol listing row.
type protocolSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Stages  int    `json:"stages"`
	Enabled int    `json:"enabled_stages"`
}

func newProtocolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "List the protocols in the protocols directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			loaded, err := protocol.LoadDir(cfg.ProtocolsDir())
			if err != nil {
				return err
			}

			summaries := make([]protocolSummary, 0, len(loaded))
			for _, p := range loaded {
				enabled := 0
				for _, stage := range p.Stages {
					if stage.Enabled() {
						enabled++
					}
				}
				summaries = append(summaries, protocolSummary{ID: p.ID, Name: p.Name, Stages: len(p.Stages), Enabled: enabled})
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, summaries)
			}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{s.ID, s.Name, strconv.Itoa(s.Stages), strconv.Itoa(s.Enabled)})
			}
			return writeTable(out, []string{"ID", "NAME", "STAGES", "ENABLED"}, rows)
		},
	}
}
