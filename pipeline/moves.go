// ABOUTME: Pool-level summary of the transition table for display
// ABOUTME: Each Move names a source pool, a destination and what triggers it
package pipeline

import "github.com/harperreed/agencyops/models"

// Move is one reachable pool-to-pool edge.
type Move struct {
	From    models.Pool
	To      models.Pool
	Trigger string
}

// Moves lists every pool change the machine accepts. Stage changes within
// Active Deal and outreach updates within Prospect are not pool changes and
// are left out.
var Moves = []Move{
	{From: models.PoolProspect, To: models.PoolActiveDeal, Trigger: "interested"},
	{From: models.PoolProspect, To: models.PoolNurture, Trigger: "with reason"},
	{From: models.PoolProspect, To: models.PoolDormant, Trigger: "no response"},
	{From: models.PoolProspect, To: models.PoolSuppressed, Trigger: "do not contact"},
	{From: models.PoolActiveDeal, To: models.PoolConverted, Trigger: "closed won"},
	{From: models.PoolActiveDeal, To: models.PoolDormant, Trigger: "closed lost"},
	{From: models.PoolActiveDeal, To: models.PoolNurture, Trigger: "with reason"},
	{From: models.PoolNurture, To: models.PoolActiveDeal, Trigger: "reactivate"},
	{From: models.PoolNurture, To: models.PoolConverted, Trigger: "closed won"},
	{From: models.PoolDormant, To: models.PoolActiveDeal, Trigger: "reactivate"},
	{From: models.PoolDormant, To: models.PoolConverted, Trigger: "closed won"},
}
