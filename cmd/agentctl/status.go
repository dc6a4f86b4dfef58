package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type statsResponse struct {
	TotalCost      float64 `json:"total_cost"`
	TotalCostToday float64 `json:"total_cost_today"`
	ActiveAgents   int     `json:"active_agents"`
	TotalAgents    int     `json:"total_agents"`
	ActiveSessions int     `json:"active_sessions"`
	TotalSessions  int     `json:"total_sessions"`
}

type agentRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

func runStatusCommand(cmd *cobra.Command, args []string) error {
	client := newDaemonClient(0)
	ctx := context.Background()

	statsRaw, err := client.get(ctx, "/api/stats")
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	var stats statsResponse
	if err := json.Unmarshal(statsRaw, &stats); err != nil {
		return fmt.Errorf("parse stats: %w", err)
	}

	agentsRaw, err := client.get(ctx, "/api/agents")
	if err != nil {
		return fmt.Errorf("fetch agents: %w", err)
	}
	var agents []agentRow
	if err := json.Unmarshal(agentsRaw, &agents); err != nil {
		return fmt.Errorf("parse agents: %w", err)
	}

	if outputFormat == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"stats":  stats,
			"agents": agents,
		})
	}

	headerColor.Println("AGENT STATUS:")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Kind", "Status"})
	table.SetBorder(false)
	table.SetRowSeparator("-")
	table.SetHeaderColor(
		tablewriter.Colors{tablewriter.FgMagentaColor, tablewriter.Bold},
		tablewriter.Colors{tablewriter.FgMagentaColor, tablewriter.Bold},
		tablewriter.Colors{tablewriter.FgMagentaColor, tablewriter.Bold},
	)
	for _, a := range agents {
		statusColor := successColor
		if a.Status != "connected" && a.Status != "healthy" {
			statusColor = warningColor
		}
		table.Append([]string{a.Name, a.Type, statusColor.Sprint(a.Status)})
	}
	table.Render()

	fmt.Println()
	successColor.Println("SUMMARY:")
	fmt.Printf("  Agents:   %d total, %d active\n", stats.TotalAgents, stats.ActiveAgents)
	fmt.Printf("  Sessions: %d total, %d active\n", stats.TotalSessions, stats.ActiveSessions)
	fmt.Printf("  Cost:     $%.2f total, $%.2f today\n", stats.TotalCost, stats.TotalCostToday)
	return nil
}
