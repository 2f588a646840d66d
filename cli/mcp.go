// ABOUTME: MCP server subcommand
// ABOUTME: Serves the pipeline and billing tools over stdio for Claude Desktop integration
package cli

import (
	"context"

	"github.com/harperreed/agencyops/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

type MCPCmd struct {
	flags   *Flags
	version string
}

func NewMCPCmd(flags *Flags, version string) *MCPCmd {
	return &MCPCmd{flags: flags, version: version}
}

// Register adds the mcp command to the application
func (cmd *MCPCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "mcp",
		Usage:     "Start the MCP server on stdio",
		UsageText: "agencyops mcp",
		Action:    cmd.run,
	})

	return app
}

func (cmd *MCPCmd) run(ctx context.Context, c *cli.Command) error {
	app := cmd.flags.App
	app.Logger.Info().Str("backend", app.Config.Backend).Msg("starting MCP server")

	server := NewMCPServer(app, cmd.version)
	return server.Run(ctx, &mcp.StdioTransport{})
}

// NewMCPServer registers every tool, resource and prompt against the app's services.
func NewMCPServer(app *App, version string) *mcp.Server {
	opportunityHandlers := handlers.NewOpportunityHandlers(app.Machine)
	billingHandlers := handlers.NewBillingHandlers(app.Engine, app.Sink)
	resourceHandlers := handlers.NewResourceHandlers(app.Machine, app.Engine, app.Sink)
	promptHandlers := handlers.NewPromptHandlers(app.Machine, app.Sink)
	vizHandlers := handlers.NewVizHandlers(app.VizSources())

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agencyops",
		Version: version,
	}, nil)

	// Pipeline tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_opportunity",
		Description: "Add a new lead to the Prospect pool with at least one contact method",
	}, opportunityHandlers.CreateOpportunity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "transition_opportunity",
		Description: "Move an opportunity between pools, stages or outreach statuses, or log a note; closed_won converts it to a customer",
	}, opportunityHandlers.TransitionOpportunity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_opportunity",
		Description: "Fetch one opportunity with its activity log, newest first",
	}, opportunityHandlers.GetOpportunity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_opportunities",
		Description: "List opportunities by pool, highest score first",
	}, opportunityHandlers.ListOpportunities)

	// Billing tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_package",
		Description: "Create a billable package with line items and payment milestones",
	}, billingHandlers.CreatePackage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "report_unit_completed",
		Description: "Record one completed unit on a package and raise alerts for milestones it crosses",
	}, billingHandlers.ReportUnitCompleted)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete_work_unit",
		Description: "Mark a tracked work unit done; standalone units raise a full-payment alert",
	}, billingHandlers.CompleteWorkUnit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_billing_alerts",
		Description: "List billing alerts, newest first, by client, package or status",
	}, billingHandlers.ListBillingAlerts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_alert_received",
		Description: "Record payment of a billing alert and credit its package",
	}, billingHandlers.MarkAlertReceived)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "undo_alert_received",
		Description: "Revert a recorded payment back to due",
	}, billingHandlers.UndoAlertReceived)

	// Visualization tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pipeline_graph",
		Description: "Render the pipeline flow as GraphViz DOT: pools with counts, allowed moves as edges",
	}, vizHandlers.PipelineGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dashboard",
		Description: "Summarize pool counts, delivery progress, outstanding and received billing, and stale deals",
	}, vizHandlers.Dashboard)

	// Resources
	server.AddResource(&mcp.Resource{
		URI:         "agencyops://pipeline",
		Name:        "pipeline",
		Description: "Opportunity counts and total value per pool",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "agencyops://alerts",
		Name:        "outstanding-alerts",
		Description: "Billing alerts not yet received",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "agencyops://packages/{id}",
		Name:        "package",
		Description: "A package with line item progress and milestones",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Prompts
	for _, p := range promptHandlers.Prompts() {
		server.AddPrompt(p, promptHandlers.GetPrompt)
	}

	return server
}
