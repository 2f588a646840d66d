// ABOUTME: Opportunity CLI commands
// ABOUTME: Human-friendly commands for adding, moving and reviewing pipeline leads
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harperreed/agencyops/handlers"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/urfave/cli/v3"
)

type OpportunityCmd struct {
	flags *Flags

	// add
	name         string
	organization string
	role         string
	email        string
	phone        string
	linkedin     string
	value        int64

	// move
	pool     string
	stage    string
	outreach string
	note     string
	token    string

	// list
	limit int
}

func NewOpportunityCmd(flags *Flags) *OpportunityCmd {
	return &OpportunityCmd{flags: flags}
}

// Register adds the opp command tree to the application
func (cmd *OpportunityCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:    "opp",
		Aliases: []string{"opportunity"},
		Usage:   "Manage pipeline opportunities",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a new prospect",
				UsageText: "agencyops opp add --name NAME [--email EMAIL] [--phone PHONE] [--linkedin URL]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "person or lead name", Required: true, Destination: &cmd.name},
					&cli.StringFlag{Name: "org", Usage: "organization", Destination: &cmd.organization},
					&cli.StringFlag{Name: "role", Usage: "role at the organization", Destination: &cmd.role},
					&cli.StringFlag{Name: "email", Usage: "email address", Destination: &cmd.email},
					&cli.StringFlag{Name: "phone", Usage: "phone number", Destination: &cmd.phone},
					&cli.StringFlag{Name: "linkedin", Usage: "LinkedIn profile URL", Destination: &cmd.linkedin},
					&cli.Int64Flag{Name: "value", Usage: "estimated deal value in cents", Value: -1, Destination: &cmd.value},
				},
				Action: cmd.runAdd,
			},
			{
				Name:      "show",
				Usage:     "Show an opportunity with its activity log",
				UsageText: "agencyops opp show <id>",
				Action:    cmd.runShow,
			},
			{
				Name:      "list",
				Usage:     "List opportunities, highest score first",
				UsageText: "agencyops opp list [--pool POOL] [--limit N]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pool", Usage: "only this pool", Destination: &cmd.pool},
					&cli.IntFlag{Name: "limit", Usage: "maximum results", Value: 50, Destination: &cmd.limit},
				},
				Action: cmd.runList,
			},
			{
				Name:      "move",
				Usage:     "Transition an opportunity",
				UsageText: "agencyops opp move <id> [--pool POOL] [--stage STAGE] [--outreach STATUS] [--note TEXT]",
				Description: `Moves an opportunity through the pipeline.

Pools: prospect, active_deal, nurture, dormant, suppressed.
Stages: new_prospect, contacted, qualified, proposal_sent, negotiation, closed_won, closed_lost.
Outreach: message_sent, replied, interested.

Moving to nurture requires --note. closed_won converts the opportunity to a customer.`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pool", Usage: "target pool", Destination: &cmd.pool},
					&cli.StringFlag{Name: "stage", Usage: "target deal stage", Destination: &cmd.stage},
					&cli.StringFlag{Name: "outreach", Usage: "prospect outreach status", Destination: &cmd.outreach},
					&cli.StringFlag{Name: "note", Usage: "note to log with the move", Destination: &cmd.note},
					&cli.StringFlag{
						Name:        "token",
						Usage:       "OAuth access token for contact sync",
						Sources:     cli.EnvVars("GOOGLE_ACCESS_TOKEN"),
						Destination: &cmd.token,
					},
				},
				Action: cmd.runMove,
			},
			{
				Name:      "note",
				Usage:     "Log a note without moving the opportunity",
				UsageText: "agencyops opp note <id> <text...>",
				Action:    cmd.runNote,
			},
		},
	})

	return app
}

func (cmd *OpportunityCmd) runAdd(ctx context.Context, c *cli.Command) error {
	in := pipeline.NewOpportunity{
		DisplayName:  cmd.name,
		Organization: cmd.organization,
		Role:         cmd.role,
	}
	for _, cm := range []models.ContactMethod{
		{Type: models.ChannelEmail, Value: cmd.email},
		{Type: models.ChannelPhone, Value: cmd.phone},
		{Type: models.ChannelLinkedIn, Value: cmd.linkedin},
	} {
		if cm.Value != "" {
			in.ContactMethods = append(in.ContactMethods, cm)
		}
	}
	if cmd.value >= 0 {
		v := cmd.value
		in.Value = &v
	}

	opp, err := cmd.flags.App.Machine.Create(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create opportunity: %w", err)
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "✓ Opportunity created: %s (ID: %s)\n", opp.DisplayName, opp.ID)
	_, _ = fmt.Fprintf(out, "  Pool: %s\n", opp.Pool.Label())
	return nil
}

func (cmd *OpportunityCmd) runShow(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	opp, err := cmd.flags.App.Machine.Get(ctx, id)
	if err != nil {
		return err
	}
	writeOpportunity(c.Root().Writer, opp)
	return nil
}

func (cmd *OpportunityCmd) runList(ctx context.Context, c *cli.Command) error {
	var pool models.Pool
	if cmd.pool != "" {
		p, ok := models.ParsePool(cmd.pool)
		if !ok {
			return fmt.Errorf("invalid pool: %s", cmd.pool)
		}
		pool = p
	}

	opps, err := cmd.flags.App.Machine.List(ctx, pool)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if len(opps) == 0 {
		_, _ = fmt.Fprintln(out, "No opportunities found")
		return nil
	}
	pipeline.SortByScore(opps)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tORGANIZATION\tPOOL\tSTAGE\tSCORE\tID")
	_, _ = fmt.Fprintln(w, "----\t------------\t----\t-----\t-----\t--")
	for i, o := range opps {
		if cmd.limit > 0 && i >= cmd.limit {
			break
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.DisplayName, dash(o.Organization), o.Pool.Label(), stageOrOutreach(&o), o.Score, o.ID)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nTotal: %d opportunity(ies)\n", len(opps))
	return nil
}

func (cmd *OpportunityCmd) runMove(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	ch, err := handlers.ParseChange(cmd.pool, cmd.stage, cmd.outreach, cmd.note)
	if err != nil {
		return err
	}
	ch.AccessToken = cmd.token

	opp, err := cmd.flags.App.Machine.Transition(ctx, id, ch)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if opp.Pool == models.PoolConverted {
		_, _ = fmt.Fprintf(out, "✓ %s converted to customer %s\n", opp.DisplayName, opp.CustomerID)
		return nil
	}
	_, _ = fmt.Fprintf(out, "✓ %s is now %s (score %d)\n", opp.DisplayName, placement(opp), opp.Score)
	return nil
}

func (cmd *OpportunityCmd) runNote(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(c.Args().Slice()[1:], " "))
	if text == "" {
		return fmt.Errorf("usage: agencyops opp note <id> <text...>")
	}

	opp, err := cmd.flags.App.Machine.Transition(ctx, id, pipeline.Change{Note: text})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "✓ Note added to %s\n", opp.DisplayName)
	return nil
}

func writeOpportunity(w io.Writer, o *models.Opportunity) {
	_, _ = fmt.Fprintf(w, "%s\n", o.DisplayName)
	if o.Organization != "" || o.Role != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", strings.TrimSpace(o.Role+" "+atOrg(o.Organization)))
	}
	_, _ = fmt.Fprintf(w, "  ID: %s\n", o.ID)
	_, _ = fmt.Fprintf(w, "  Placement: %s\n", placement(o))
	_, _ = fmt.Fprintf(w, "  Score: %d\n", o.Score)
	if o.Value != nil {
		_, _ = fmt.Fprintf(w, "  Value: %s\n", formatCents(*o.Value))
	}
	for _, cm := range o.ContactMethods {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", cm.Type, cm.Value)
	}
	if len(o.Tags) > 0 {
		_, _ = fmt.Fprintf(w, "  Tags: %s\n", strings.Join(o.Tags, ", "))
	}
	if o.NurtureReason != "" {
		_, _ = fmt.Fprintf(w, "  Nurture reason: %s\n", o.NurtureReason)
	}
	if o.ExternalContactID != "" {
		_, _ = fmt.Fprintf(w, "  Contact: %s\n", o.ExternalContactID)
	}

	if len(o.Activities) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\nActivity:\n")
	for _, a := range models.NewestFirst(o.Activities) {
		_, _ = fmt.Fprintf(w, "  %s  %s\n", a.Timestamp.Local().Format(time.DateTime), a.Description)
	}
}

func placement(o *models.Opportunity) string {
	if s := stageOrOutreach(o); s != "-" {
		return o.Pool.Label() + " / " + s
	}
	return o.Pool.Label()
}

func stageOrOutreach(o *models.Opportunity) string {
	switch {
	case o.Stage != "":
		return o.Stage.Label()
	case o.Outreach != "":
		return o.Outreach.Label()
	}
	return "-"
}

func atOrg(org string) string {
	if org == "" {
		return ""
	}
	return "at " + org
}
