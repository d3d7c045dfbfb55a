package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/rubiojr/discord-bridge/internal/config"
)

var (
	routesTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86")).
				Background(lipgloss.Color("235")).
				Padding(0, 1).
				Margin(0, 0, 1, 0)

	routesHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("214"))

	routesDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)

	routesEventStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("33")).
				Bold(true)
)

// RoutesCommand prints the configured route table, grounded on the
// teacher's lipgloss-styled `cmd/today.go` rendering.
func RoutesCommand() *cli.Command {
	return &cli.Command{
		Name:  "routes",
		Usage: "Print the configured route table",
		Action: func(ctx context.Context, c *cli.Command) error {
			return printRoutes(c.String("config"))
		},
	}
}

func printRoutes(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println(routesTitleStyle.Render("discord-bridge routes"))

	if len(cfg.Routes) == 0 {
		fmt.Println(routesDisabledStyle.Render("No routes configured"))
		return nil
	}

	fmt.Println(routesHeaderStyle.Render(fmt.Sprintf("%-20s %-10s %s", "EVENT", "ENABLED", "ENDPOINTS")))
	for _, route := range cfg.Routes {
		status := "yes"
		line := fmt.Sprintf("%-20s %-10s %s",
			routesEventStyle.Render(route.EventName), status, strings.Join(route.Endpoints, ", "))
		if !route.IsEnabled() {
			line = routesDisabledStyle.Render(fmt.Sprintf("%-20s %-10s %s", route.EventName, "no", strings.Join(route.Endpoints, ", ")))
		}
		fmt.Println(line)
	}

	return nil
}
