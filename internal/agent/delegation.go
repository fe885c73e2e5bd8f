package agent

import (
	"context"
	"slices"
	"strings"

	"github.com/haasonsaas/agentdesk/internal/actions"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

type delegationKey struct{}

// delegationChain lists the agent ids that delegated, outermost first.
type delegationChain []string

func chainFromContext(ctx context.Context) delegationChain {
	chain, _ := ctx.Value(delegationKey{}).(delegationChain)
	return chain
}

func withChain(ctx context.Context, chain delegationChain) context.Context {
	return context.WithValue(ctx, delegationKey{}, chain)
}

// delegate runs a nested pipeline for the target agent and returns the reply
// formatted for the parent. Skipped delegations return "".
func (d *dispatcher) delegate(ctx context.Context, a actions.DelegateToAgent) (string, error) {
	p := d.p
	chain := chainFromContext(ctx)
	if len(chain)+1 > p.opts.MaxDelegationDepth {
		p.logger.Warn("delegation skipped: depth limit",
			"user_id", d.req.UserID, "agent_id", d.req.AgentID, "target", a.AgentSlug, "depth", len(chain))
		return "", nil
	}

	var target *models.AgentRef
	if !p.optional(ctx, d.req, "delegation_lookup", func(ctx context.Context) error {
		var err error
		target, err = p.deps.Config.LookupAgentBySlug(ctx, d.req.UserID, a.AgentSlug)
		return err
	}) {
		return "", nil
	}
	if target == nil {
		p.logger.Warn("delegation skipped: unknown agent",
			"user_id", d.req.UserID, "agent_id", d.req.AgentID, "target", a.AgentSlug)
		return "", nil
	}
	if target.ID == d.agentID || slices.Contains(chain, target.ID) {
		p.logger.Warn("delegation skipped: cycle",
			"user_id", d.req.UserID, "agent_id", d.agentID, "target", target.ID)
		return "", nil
	}

	next := append(slices.Clone(chain), d.agentID)
	res := p.ProcessMessage(withChain(ctx, next), Request{
		UserID:   d.req.UserID,
		AgentID:  target.ID,
		Message:  a.Message,
		Channel:  models.ChannelA2A,
		CallerID: d.agentID,
	})
	reply := strings.TrimSpace(res.Response)
	if reply == "" {
		return "", nil
	}
	name := target.Name
	if name == "" {
		name = target.Slug
	}
	return "**" + name + ":** " + reply, nil
}
