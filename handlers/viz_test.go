package handlers

import (
	"context"
	"testing"

	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/charm"
	"github.com/harperreed/agencyops/customers"
	"github.com/harperreed/agencyops/milestones"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/harperreed/agencyops/store"
	"github.com/harperreed/agencyops/viz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVizTools(t *testing.T) {
	client, cleanup := charm.NewTestClient(t)
	t.Cleanup(cleanup)

	s := store.New(client)
	sink := billing.NewSink(s, zerolog.Nop())
	emitter := customers.NewEmitter(s)
	machine := pipeline.NewMachine(s, emitter)
	engine := milestones.NewEngine(s, sink)
	ctx := context.Background()

	_, err := machine.Create(ctx, pipeline.NewOpportunity{
		DisplayName:    "Viz Vic",
		ContactMethods: []models.ContactMethod{{Type: models.ChannelPhone, Value: "+15550100"}},
	})
	require.NoError(t, err)

	h := NewVizHandlers(viz.Sources{Opportunities: machine, Customers: emitter, Packages: engine, Alerts: sink})

	_, graph, err := h.PipelineGraph(ctx, nil, PipelineGraphInput{})
	require.NoError(t, err)
	assert.Contains(t, graph.DOTSource, "prospect")
	assert.Equal(t, len(pipeline.Moves), graph.EdgeCount)

	_, dash, err := h.Dashboard(ctx, nil, DashboardInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, dash.PoolCounts["prospect"])
	assert.Zero(t, dash.Outstanding)
	assert.Contains(t, dash.Text, "PIPELINE OVERVIEW")
}
