package provider

// Options hold what the factory needs to construct an adapter. BaseURL
// overrides the vendor's production endpoint, for tests and compatible
// deployments. MaxTokens only applies to vendors that require a cap.
type Options struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// New selects the adapter for a provider id.
func New(opts Options) (Adapter, error) {
	switch opts.Provider {
	case "anthropic":
		return NewAnthropic(opts.APIKey, opts.Model, opts.BaseURL, opts.MaxTokens), nil
	case "openai":
		return NewOpenAI(opts.APIKey, opts.Model, opts.BaseURL), nil
	case "deepseek":
		return NewDeepSeek(opts.APIKey, opts.Model, opts.BaseURL), nil
	case "groq":
		return NewGroq(opts.APIKey, opts.Model, opts.BaseURL), nil
	case "google":
		return NewGoogle(opts.APIKey, opts.Model, opts.BaseURL), nil
	case "mistral":
		return NewMistral(opts.APIKey, opts.Model, opts.BaseURL), nil
	case "xai":
		return NewXAI(opts.APIKey, opts.Model, opts.BaseURL), nil
	default:
		return nil, &UnknownProviderError{Provider: opts.Provider}
	}
}

// Providers lists the supported provider ids.
func Providers() []string {
	return []string{"anthropic", "deepseek", "google", "groq", "mistral", "openai", "xai"}
}
