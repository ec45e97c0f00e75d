package tools

import "context"

// RegulatoryDatabase returns applicable-regulation stubs for a product area.
func RegulatoryDatabase() Tool {
	return newTool("regulatory_database", "Look up regulations applicable to a product area",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			area := stringArg(args, "area", "retail banking")
			return map[string]any{
				"area": area,
				"regulations": []map[string]any{
					{"code": "NCA", "name": "National Credit Act", "applies": true},
					{"code": "POPIA", "name": "Protection of Personal Information Act", "applies": true},
					{"code": "FAIS", "name": "Financial Advisory and Intermediary Services Act", "applies": true},
				},
			}, nil
		})
}

// ComplianceScanner scans campaign content for regulatory violations.
func ComplianceScanner() Tool {
	return newTool("compliance_scanner", "Scan campaign content for regulatory violations",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"violations": []string{},
				"warnings":   []string{"include standard credit disclaimer"},
				"status":     "pass",
			}, nil
		})
}

// RiskScoring returns a reputational and regulatory risk score stub.
func RiskScoring() Tool {
	return newTool("risk_scoring", "Score a campaign's regulatory and reputational risk",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"risk_score": 0.18,
				"risk_band":  "low",
				"factors":    []string{"regulated product claims", "broad audience"},
			}, nil
		})
}
