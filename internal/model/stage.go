package model

import "time"

// AgentRole identifies which specialist agent is responsible for a stage.
type AgentRole string

const (
	RoleMarketIntelligence   AgentRole = "market_intelligence"
	RoleCustomerSegmentation AgentRole = "customer_segmentation"
	RoleContentStrategy      AgentRole = "content_strategy"
	RoleCampaignExecution    AgentRole = "campaign_execution"
	RolePerformanceAnalytics AgentRole = "performance_analytics"
	RoleComplianceRisk       AgentRole = "compliance_risk"
)

// KnownRoles lists the agent roles shipped with the service.
var KnownRoles = []AgentRole{
	RoleMarketIntelligence,
	RoleCustomerSegmentation,
	RoleContentStrategy,
	RoleCampaignExecution,
	RolePerformanceAnalytics,
	RoleComplianceRisk,
}

// StageDescriptor is the immutable definition of one unit of work in a
// workflow. Created at definition-load time and never mutated afterwards.
type StageDescriptor struct {
	// Name uniquely identifies the stage within its workflow and is the
	// context key its output is stored under.
	Name string `json:"name" yaml:"name"`

	// AgentRole names the agent responsible for producing the output.
	AgentRole AgentRole `json:"agent_role" yaml:"agent_role"`

	// RequiredContext lists context keys that must exist before the stage
	// may run. The reserved "input" key refers to the run's initial input.
	RequiredContext []string `json:"required_context,omitempty" yaml:"required_context,omitempty"`

	// RequiresApproval gates the stage behind a human decision.
	RequiresApproval bool `json:"requires_approval,omitempty" yaml:"requires_approval,omitempty"`

	// Description is the task prompt handed to the agent invoker.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Timeout bounds a single invoker attempt. A zero value falls back to
	// the runner's default. An expired attempt is treated as transient.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Clone returns a copy with its own slice backing.
func (s StageDescriptor) Clone() StageDescriptor {
	out := s
	if s.RequiredContext != nil {
		out.RequiredContext = make([]string, len(s.RequiredContext))
		copy(out.RequiredContext, s.RequiredContext)
	}
	return out
}
