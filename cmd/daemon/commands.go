// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/kodiguide/internal/guide"
	"github.com/ManuGH/kodiguide/internal/query"
	"github.com/ManuGH/kodiguide/internal/reconcile"
)

func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg, c.server), nil
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "refresh channels|guide",
		Short:     "Ask the running daemon to refresh now",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"channels", "guide"},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch args[0] {
			case "channels":
				var rep reconcile.Report
				if err := client.do(cmd.Context(), http.MethodPost, "/refresh/channels", nil, &rep); err != nil {
					return err
				}
				fmt.Fprintf(out, "Live channels: %d (duplicates %d)\n", rep.LiveChannels, rep.Duplicates)
				if len(rep.FailedGroups) > 0 {
					fmt.Fprintf(out, "Failed groups: %s\n", joinInts(rep.FailedGroups))
				}
				printDiagnostics(out, rep)
			default:
				var rep reconcile.GuideReport
				if err := client.do(cmd.Context(), http.MethodPost, "/refresh/guide", nil, &rep); err != nil {
					return err
				}
				fmt.Fprintf(out, "Guide: %d channels, %d categories, %d programs (skipped %d)\n",
					rep.Channels, rep.Categories, rep.Programs, rep.Skipped)
			}
			return nil
		},
	}
}

// programRow mirrors one entry of the /programs response.
type programRow struct {
	Tag string `json:"tag"`
	query.ResolvedProgram
}

type programsPayload struct {
	Mode       query.Mode   `json:"mode"`
	Categories []string     `json:"categories"`
	Programs   []programRow `json:"programs"`
}

func newProgramsCommand(ctx *commandContext) *cobra.Command {
	var (
		title  string
		mode   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "programs CATEGORY",
		Short: "List upcoming or current programs of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := query.ParseMode(mode)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			q := url.Values{"category": {args[0]}, "mode": {string(m)}}
			if title != "" {
				q.Set("title", title)
			}
			var payload programsPayload
			if err := client.do(cmd.Context(), http.MethodGet, "/programs", q, &payload); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndented(out, payload.Programs)
			}
			if len(payload.Programs) == 0 {
				fmt.Fprintln(out, "No programs found.")
				return nil
			}
			fmt.Fprintln(out, renderPrograms(payload.Programs, m))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Only programs whose title contains this text")
	cmd.Flags().StringVar(&mode, "mode", "upcoming", "upcoming or now")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func renderPrograms(rows []programRow, mode query.Mode) string {
	when := "Starts in"
	if mode == query.ModeNow {
		when = "Ends in"
	}
	out := make([][]string, 0, len(rows))
	for _, p := range rows {
		secs := p.Urgency(mode)
		out = append(out, []string{
			p.Tag,
			p.Title,
			p.Start.Local().Format("Mon 15:04"),
			(time.Duration(secs) * time.Second).String(),
		})
	}
	return renderTable(
		[]column{left("Channel"), left("Title"), left("Start"), right(when)},
		out,
	)
}

func newCategoriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the guide categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var payload programsPayload
			if err := client.do(cmd.Context(), http.MethodGet, "/programs", nil, &payload); err != nil {
				return err
			}
			for _, c := range payload.Categories {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

type statusPayload struct {
	Store    *guide.Stats           `json:"store"`
	Channels *reconcile.Report      `json:"channels"`
	Guide    *reconcile.GuideReport `json:"guide"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store sizes and the last refresh outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var st statusPayload
			if err := client.do(cmd.Context(), http.MethodGet, "/status", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndented(out, st)
			}

			rows := [][]string{}
			if st.Store != nil {
				rows = append(rows,
					[]string{"Live channels", strconv.Itoa(st.Store.LiveChannels)},
					[]string{"Guide channels", strconv.Itoa(st.Store.GuideChannels)},
					[]string{"Categories", strconv.Itoa(st.Store.Categories)},
					[]string{"Programs", strconv.Itoa(st.Store.Programs)},
				)
			}
			rows = append(rows, []string{"Last channel refresh", lastRefresh(st.Channels != nil, func() time.Time { return st.Channels.CompletedAt })})
			rows = append(rows, []string{"Last guide refresh", lastRefresh(st.Guide != nil, func() time.Time { return st.Guide.CompletedAt })})
			fmt.Fprintln(out, renderTable([]column{left("Item"), right("Value")}, rows))

			if st.Channels != nil {
				printDiagnostics(out, *st.Channels)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newHealthcheckCommand(ctx *commandContext) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the daemon's readiness (or liveness) endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := strings.TrimRight(ctx.server, "/")
			if base == "" {
				cfg, err := ctx.loadConfig()
				if err != nil {
					return err
				}
				base = "http://" + dialAddr(cfg.Listen)
			}
			path := "/readyz"
			if live {
				path = "/healthz"
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+path, nil)
			if err != nil {
				return err
			}
			resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
			if err != nil {
				return fmt.Errorf("healthcheck failed (network): %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck failed (status): %s", resp.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Healthcheck successful (%s)\n", strings.TrimPrefix(path, "/"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Check liveness instead of readiness")
	return cmd
}

func printDiagnostics(out io.Writer, rep reconcile.Report) {
	if len(rep.MissingFromGuide) > 0 {
		rows := make([][]string, 0, len(rep.MissingFromGuide))
		for _, ch := range rep.MissingFromGuide {
			rows = append(rows, []string{strconv.Itoa(ch.ID), ch.Label})
		}
		fmt.Fprintln(out, "Device channels without guide data:")
		fmt.Fprintln(out, renderTable([]column{right("ID"), left("Label")}, rows))
	}
	if len(rep.UnresolvedAliases) > 0 {
		fmt.Fprintf(out, "Aliases matching no device channel: %s\n", strings.Join(rep.UnresolvedAliases, ", "))
	}
}

func lastRefresh(ok bool, at func() time.Time) string {
	if !ok {
		return "never"
	}
	return at().Local().Format(time.RFC3339)
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
