package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dmdmdm-nz/intfreactor/internal/api"
	"github.com/dmdmdm-nz/intfreactor/internal/netmon"
	"github.com/dmdmdm-nz/intfreactor/internal/status"
)

const requestTimeout = 5 * time.Second

func newStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Shows the status of a running agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: requestTimeout}
			base := "http://" + addr

			var info api.AgentInfo
			if err := getJSON(cmd.Context(), client, base+"/agent", &info); err != nil {
				return err
			}
			var entries []status.Entry
			if err := getJSON(cmd.Context(), client, base+"/status", &entries); err != nil {
				return err
			}
			var states []netmon.InterfaceState
			if err := getJSON(cmd.Context(), client, base+"/interfaces", &states); err != nil {
				return err
			}

			printStatus(cmd.OutOrStdout(), info, entries, states)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address (host:port) of the agent's status API")
	if err := cmd.MarkFlagRequired("addr"); err != nil {
		panic(fmt.Errorf("failed to mark flag `addr` as required: %w", err))
	}
	return cmd
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "build request for %s", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "query %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("query %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", url)
	}
	return nil
}

func printStatus(w io.Writer, info api.AgentInfo, entries []status.Entry, states []netmon.InterfaceState) {
	agent := table.NewWriter()
	agent.AppendHeader(table.Row{"Agent", "Value"})
	agent.AppendRow(table.Row{"Version", info.Version})
	agent.AppendRow(table.Row{"Initialized", info.Initialized})
	agent.AppendRow(table.Row{"Enabled", info.Enabled})
	agent.AppendRow(table.Row{"Watching all interfaces", info.WatchingAll})
	agent.AppendRow(table.Row{"Shutdown complete", info.ShutdownComplete})
	agent.AppendRow(table.Row{"Undelivered events", info.Undelivered})
	agent.SetStyle(table.StyleLight)
	fmt.Fprintf(w, "%s\n\n", agent.Render())

	st := table.NewWriter()
	st.AppendHeader(table.Row{"Status", "Value"})
	for _, e := range entries {
		st.AppendRow(table.Row{e.Key, e.Value})
	}
	st.SetStyle(table.StyleLight)
	fmt.Fprintf(w, "%s\n\n", st.Render())

	intfs := table.NewWriter()
	intfs.AppendHeader(table.Row{"Interface", "Oper State"})
	for _, s := range states {
		intfs.AppendRow(table.Row{s.Name, string(s.State)})
	}
	intfs.SetStyle(table.StyleLight)
	intfs.Style().Options.DrawBorder = false
	fmt.Fprintf(w, "%s\n", intfs.Render())
}
