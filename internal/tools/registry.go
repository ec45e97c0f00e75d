package tools

import "github.com/abanklabs/crewflow/internal/model"

// ForRole returns the tool set available to an agent role. Unknown roles
// get no tools.
func ForRole(role model.AgentRole) []Tool {
	switch role {
	case model.RoleMarketIntelligence:
		return []Tool{WebSearch(), SocialSentiment(), CompetitorMonitor(), SearchTrends()}
	case model.RoleCustomerSegmentation:
		return []Tool{CRMConnector(), CustomerAnalytics(), Segmentation()}
	case model.RoleContentStrategy:
		return []Tool{ContentGenerator(), BrandChecker(), Translator()}
	case model.RoleCampaignExecution:
		return []Tool{EmailPlatform(), SMSGateway(), SocialPublisher()}
	case model.RolePerformanceAnalytics:
		return []Tool{MetricsTracker(), AttributionModeler(), ROICalculator()}
	case model.RoleComplianceRisk:
		return []Tool{RegulatoryDatabase(), ComplianceScanner(), RiskScoring()}
	default:
		return nil
	}
}
