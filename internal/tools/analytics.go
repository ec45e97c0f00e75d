package tools

import (
	"context"
	"errors"
)

// MetricsTracker returns campaign performance metric stubs.
func MetricsTracker() Tool {
	return newTool("metrics_tracker", "Report live campaign performance metrics",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			campaign := stringArg(args, "campaign", "unnamed")
			return map[string]any{
				"campaign":       campaign,
				"impressions":    182400,
				"clicks":         6210,
				"conversions":    487,
				"ctr_pct":        3.4,
				"conversion_pct": 7.8,
			}, nil
		})
}

// AttributionModeler returns channel attribution stubs.
func AttributionModeler() Tool {
	return newTool("attribution_modeler", "Attribute conversions across channels",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"model": "last_touch",
				"attribution": map[string]any{
					"email":  0.41,
					"social": 0.27,
					"sms":    0.18,
					"search": 0.14,
				},
			}, nil
		})
}

// ROICalculator computes return on investment from spend and revenue
// arguments. Unlike the other stubs, the arithmetic is real.
func ROICalculator() Tool {
	return newTool("roi_calculator", "Calculate campaign return on investment",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			spend := floatArg(args, "spend", 0)
			revenue := floatArg(args, "revenue", 0)
			if spend <= 0 {
				return nil, errors.New("spend must be positive")
			}
			roi := (revenue - spend) / spend
			return map[string]any{
				"spend":   spend,
				"revenue": revenue,
				"roi":     roi,
				"roi_pct": roi * 100,
			}, nil
		})
}
