package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/hangview/internal/db"
	"github.com/tOgg1/hangview/internal/models"
)

// historyRow is one protocol history entry as printed.
type historyRow struct {
	Time     time.Time        `json:"time"`
	Type     models.EventType `json:"type"`
	Protocol string           `json:"protocol,omitempty"`
	Stage    *int             `json:"stage,omitempty"`
	Study    string           `json:"study,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		eventType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded protocol history, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.DatabasePath()); os.IsNotExist(err) {
				return fmt.Errorf("no history recorded yet (%s does not exist)", cfg.DatabasePath())
			}
			ctx := cmd.Context()
			database, err := db.Open(ctx, db.Config{Path: cfg.DatabasePath(), BusyTimeoutMs: cfg.Database.BusyTimeoutMs})
			if err != nil {
				return err
			}
			defer database.Close()

			query := db.EventQuery{Limit: 500}
			if eventType != "" {
				t := models.EventType(eventType)
				query.Type = &t
			}
			repo := db.NewEventRepository(database)
			var rows []historyRow
			for {
				page, err := repo.Query(ctx, query)
				if err != nil {
					return err
				}
				for _, event := range page.Events {
					rows = append(rows, newHistoryRow(event))
				}
				if page.NextCursor == "" {
					break
				}
				query.Cursor = page.NextCursor
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[len(rows)-limit:]
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, rows)
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				stage := "-"
				if r.Stage != nil {
					stage = strconv.Itoa(*r.Stage)
				}
				table = append(table, []string{
					r.Time.Local().Format(time.DateTime),
					string(r.Type),
					r.Protocol,
					stage,
					r.Study,
				})
			}
			return writeTable(out, []string{"TIME", "TYPE", "PROTOCOL", "STAGE", "STUDY"}, table)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "only show events of this type (e.g. protocol.applied)")
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most this many entries (0 for all)")
	return cmd
}

func newHistoryRow(event *models.Event) historyRow {
	row := historyRow{Time: event.Timestamp, Type: event.Type, Protocol: event.EntityID}
	raw, ok := event.Payload.(json.RawMessage)
	if !ok {
		return row
	}
	var payload models.ProtocolAppliedPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ProtocolID == "" {
		return row
	}
	stage := payload.StageIndex
	row.Protocol = payload.ProtocolID
	row.Stage = &stage
	row.Study = payload.StudyUID
	row.Error = payload.Error
	return row
}
