package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"datahub/pkg/catalog"
	"datahub/pkg/types"
)

var (
	primaryColor = lipgloss.Color("#FF79C6")
	accentColor  = lipgloss.Color("#50FA7B")
	mutedColor   = lipgloss.Color("#6272A4")
	bgLightColor = lipgloss.Color("#44475A")
	fgColor      = lipgloss.Color("#F8F8F2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginBottom(1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	accentValueStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD")).
			Background(bgLightColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <dataset-id>",
		Short: "Show a dataset's permissions and resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := newCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			id := types.DatasetID(args[0])
			dataset, err := cat.Datasets.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			resources, err := cat.ListAllResources(cmd.Context(), catalog.ResourceFilter{DatasetID: id})
			if err != nil {
				return err
			}

			fmt.Println(renderDatasetPanel(dataset))
			if len(dataset.Permissions) > 0 {
				fmt.Println(renderPermissionsTable(dataset.Permissions))
			}
			if len(resources) > 0 {
				fmt.Println(renderResourcesTable(resources))
			}
			return nil
		},
	}
}

func renderDatasetPanel(dataset types.Dataset) string {
	var content strings.Builder
	fields := []struct {
		label string
		value string
		style lipgloss.Style
	}{
		{"Dataset", string(dataset.ID), accentValueStyle},
		{"Hub", string(dataset.Hub), valueStyle},
		{"Owner", string(dataset.OwnerAccountID), valueStyle},
		{"Permissions", fmt.Sprintf("%d", len(dataset.Permissions)), valueStyle},
		{"Updated", dataset.UpdatedAt.Format("2006-01-02 15:04:05"), valueStyle},
	}
	for _, f := range fields {
		content.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render(f.label+":"),
			f.style.Render(f.value)))
	}
	full := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("DATASET"),
		strings.TrimSpace(content.String()))
	return panelStyle.Render(full)
}

func renderPermissionsTable(permissions []types.Permission) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(bgLightColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return rowStyle.Foreground(fgColor)
		}).
		Headers("ACCOUNT", "STAGE", "REGION", "SYNC")

	for _, p := range permissions {
		t.Row(string(p.AccountID), string(p.Stage), string(p.Region), string(p.SyncType))
	}
	return t.Render()
}

func renderResourcesTable(resources []types.Resource) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(bgLightColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return rowStyle.Foreground(fgColor)
		}).
		Headers("TYPE", "STAGE", "REGION", "ACCOUNT", "ARN")

	for _, r := range resources {
		t.Row(string(r.Type), string(r.Stage), string(r.Region),
			string(r.ResourceAccountID), string(r.ARN))
	}
	return t.Render()
}
