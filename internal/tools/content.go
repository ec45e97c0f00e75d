package tools

import (
	"context"
	"fmt"
	"strings"
)

// ContentGenerator produces channel-specific copy stubs from a brief.
func ContentGenerator() Tool {
	return newTool("content_generator", "Generate marketing copy for a channel",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			contentType := stringArg(args, "content_type", "email")
			brief := stringArg(args, "brief", "product launch")
			tone := stringArg(args, "tone", "professional")
			return map[string]any{
				"content_type": contentType,
				"tone":         tone,
				"generated":    fmt.Sprintf("%s %s copy for %s", tone, contentType, brief),
			}, nil
		})
}

// BrandChecker scores content against brand guidelines.
func BrandChecker() Tool {
	return newTool("brand_checker", "Check content against brand guidelines",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"compliance_score": 0.95,
				"status":           "approved",
			}, nil
		})
}

// Translator returns placeholder translations for the requested languages.
func Translator() Tool {
	return newTool("translator", "Translate content into target languages",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			text := stringArg(args, "text", "")
			langs := stringArg(args, "target_languages", "en")
			translations := map[string]any{}
			for _, lang := range strings.Split(langs, ",") {
				lang = strings.TrimSpace(lang)
				if lang == "" {
					continue
				}
				translations[lang] = fmt.Sprintf("[%s] %s", lang, text)
			}
			return map[string]any{"translations": translations}, nil
		})
}
