package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kinescope/internal/daemon"
	"kinescope/internal/recorder"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorder, memory, and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status daemon.Status
			if err := ctx.apiGet(cmd.Context(), "/api/status", &status); err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(status)
			}

			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Recorder", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Daemon", runningKind(status.Running), "running: "+yesNo(status.Running), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Phase", phaseKind(status.Recorder.Phase), phaseDetail(status.Recorder), colorize))
			if status.SessionID != "" {
				fmt.Fprintln(stdout, renderStatusLine("Session", statusInfo, status.SessionID, colorize))
			}
			fmt.Fprintln(stdout)

			if status.Memory != nil {
				for _, line := range renderSectionHeader("Memory", colorize) {
					fmt.Fprintln(stdout, line)
				}
				snapshot := status.Memory
				usage := fmt.Sprintf("%.1f%% (%.0f MB used of %.0f MB)", snapshot.UsagePercent, snapshot.UsedMB, snapshot.TotalMB)
				fmt.Fprintln(stdout, renderStatusLine("Usage", usageKind(snapshot.UsagePercent), usage, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Goroutines", statusInfo, strconv.Itoa(snapshot.Goroutines), colorize))
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Storage", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := [][]string{
				{"Chunks", strconv.Itoa(status.ChunkCount)},
				{"Chunk data", humanize.IBytes(uint64(status.ChunkBytes))},
				{"Pool buffers", fmt.Sprintf("%d / %d", status.Pool.Count, status.Pool.Capacity)},
				{"Pool bytes", humanize.IBytes(uint64(status.Pool.EstimatedBytes))},
				{"Database", status.DBPath},
			}
			fmt.Fprintln(stdout, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func runningKind(running bool) statusKind {
	if running {
		return statusOK
	}
	return statusWarn
}

func phaseKind(phase recorder.Phase) statusKind {
	switch phase {
	case recorder.PhaseRecording:
		return statusOK
	case recorder.PhaseError:
		return statusError
	case recorder.PhasePaused:
		return statusWarn
	default:
		return statusInfo
	}
}

func phaseDetail(state recorder.State) string {
	detail := string(state.Phase)
	if state.DisplayCount > 0 {
		detail = fmt.Sprintf("%s (%d displays)", detail, state.DisplayCount)
	}
	if state.Code != "" {
		detail = fmt.Sprintf("%s [%s]", detail, state.Code)
	}
	return detail
}

func usageKind(percent float64) statusKind {
	switch {
	case percent >= 90:
		return statusError
	case percent >= 75:
		return statusWarn
	default:
		return statusOK
	}
}
