package tools

import "context"

// CRMConnector returns customer profile stubs from the bank's CRM.
func CRMConnector() Tool {
	return newTool("crm_connector", "Fetch customer profiles from the CRM",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			segment := stringArg(args, "segment", "all")
			return map[string]any{
				"segment":        segment,
				"customer_count": 48210,
				"sample": []map[string]any{
					{"customer_id": "C-10492", "tenure_years": 6, "products": 3, "channel": "mobile"},
					{"customer_id": "C-33817", "tenure_years": 1, "products": 1, "channel": "branch"},
				},
			}, nil
		})
}

// CustomerAnalytics returns behavioral metric stubs for a customer base.
func CustomerAnalytics() Tool {
	return newTool("customer_analytics", "Compute behavioral metrics for the customer base",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"avg_monthly_logins": 14.2,
				"churn_risk_pct":     6.8,
				"cross_sell_index":   0.34,
				"top_behavior":       "mobile payments",
			}, nil
		})
}

// Segmentation returns clustered segment stubs with sizes and traits.
func Segmentation() Tool {
	return newTool("segmentation", "Cluster customers into marketing segments",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"segments": []map[string]any{
					{"name": "digital_natives", "size": 18500, "trait": "app-first, low branch usage"},
					{"name": "established_savers", "size": 12400, "trait": "high deposits, rate sensitive"},
					{"name": "credit_builders", "size": 9100, "trait": "young, growing product uptake"},
				},
				"method": "kmeans",
			}, nil
		})
}
