package model

// builtinCatalog is the shipped model list. Prices are USD per token, from
// each vendor's published price sheet; use a prompts/models.json overlay to
// track changes without rebuilding.
func builtinCatalog() map[string]Model {
	return map[string]Model{
		// Anthropic
		"claude-opus-4":    {Provider: "anthropic", InputCost: 0.000015, OutputCost: 0.000075, Context: 200000, Vision: true, Tools: true, Description: "Most intelligent model for complex tasks"},
		"claude-sonnet-4":  {Provider: "anthropic", InputCost: 0.000003, OutputCost: 0.000015, Context: 200000, Vision: true, Tools: true, Description: "Balance of intelligence, cost, and speed"},
		"claude-haiku-3.5": {Provider: "anthropic", InputCost: 0.0000008, OutputCost: 0.000004, Context: 200000, Vision: true, Tools: true, Description: "Fastest, most cost-effective model"},

		// OpenAI
		"gpt-4o":      {Provider: "openai", InputCost: 0.0000025, OutputCost: 0.00001, Context: 128000, Vision: true, Tools: true, Description: "Flagship multimodal model"},
		"gpt-4o-mini": {Provider: "openai", InputCost: 0.00000015, OutputCost: 0.0000006, Context: 128000, Vision: true, Tools: true, Description: "Small, fast, inexpensive"},
		"gpt-4.1":     {Provider: "openai", InputCost: 0.000002, OutputCost: 0.000008, Context: 1000000, Vision: true, Tools: true, Description: "Long-context flagship"},

		// Google
		"gemini-2.5-pro":   {Provider: "google", InputCost: 0.00000125, OutputCost: 0.00001, Context: 1000000, Vision: true, Tools: true, Description: "State-of-the-art multipurpose model"},
		"gemini-2.5-flash": {Provider: "google", InputCost: 0.0000003, OutputCost: 0.0000025, Context: 1000000, Vision: true, Tools: true, Description: "Hybrid reasoning model with thinking budgets"},
		"gemini-2.0-flash": {Provider: "google", InputCost: 0.0000001, OutputCost: 0.0000004, Context: 1000000, Vision: true, Tools: true, Description: "Balanced multimodal model"},

		// MistralAI
		"mistral-large":    {Provider: "mistral", InputCost: 0.000002, OutputCost: 0.000006, Context: 128000, Tools: true, Description: "Top-tier reasoning for high-complexity tasks"},
		"mistral-medium-3": {Provider: "mistral", InputCost: 0.0000004, OutputCost: 0.000002, Context: 128000, Tools: true, Description: "Cost-efficient enterprise model"},
		"codestral":        {Provider: "mistral", InputCost: 0.0000003, OutputCost: 0.0000009, Context: 32000, Tools: true, Description: "Fast coding model"},
		"pixtral-large":    {Provider: "mistral", InputCost: 0.000002, OutputCost: 0.000006, Context: 128000, Vision: true, Tools: true, Description: "Vision-capable large model"},

		// XAI
		"grok-3":      {Provider: "xai", InputCost: 0.000003, OutputCost: 0.000015, Context: 131072, Tools: true, Description: "Flagship Grok model"},
		"grok-3-mini": {Provider: "xai", InputCost: 0.0000003, OutputCost: 0.0000005, Context: 131072, Tools: true, Description: "Lightweight reasoning model"},

		// DeepSeek (OpenAI-compatible API)
		"deepseek-chat":     {Provider: "deepseek", InputCost: 0.00000027, OutputCost: 0.0000011, Context: 64000, Tools: true, Description: "General chat model"},
		"deepseek-reasoner": {Provider: "deepseek", InputCost: 0.00000055, OutputCost: 0.00000219, Context: 64000, Tools: true, Description: "Reasoning model"},

		// Groq (OpenAI-compatible API)
		"llama-3.3-70b-versatile": {Provider: "groq", InputCost: 0.00000059, OutputCost: 0.00000079, Context: 128000, Tools: true, Description: "Llama 3.3 70B on Groq hardware"},
	}
}
