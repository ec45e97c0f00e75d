package tools

import "context"

// EmailPlatform stubs campaign scheduling on the email marketing platform.
func EmailPlatform() Tool {
	return newTool("email_platform", "Schedule an email campaign for delivery",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			campaign := stringArg(args, "campaign", "unnamed")
			return map[string]any{
				"campaign":   campaign,
				"channel":    "email",
				"status":     "scheduled",
				"recipients": 24500,
			}, nil
		})
}

// SMSGateway stubs bulk SMS dispatch.
func SMSGateway() Tool {
	return newTool("sms_gateway", "Dispatch a bulk SMS send",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"channel":  "sms",
				"status":   "queued",
				"batches":  12,
				"per_hour": 5000,
			}, nil
		})
}

// SocialPublisher stubs publishing to social channels.
func SocialPublisher() Tool {
	return newTool("social_publisher", "Publish content to social channels",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			platform := stringArg(args, "platform", "all")
			return map[string]any{
				"platform": platform,
				"status":   "published",
				"post_ids": []string{"soc-4471", "soc-4472"},
			}, nil
		})
}
