package llm

// Pricing holds USD rates per one million tokens.
type Pricing struct {
	Input       float64
	CachedInput float64
	Output      float64
}

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int64
	CachedTokens     int64
	CompletionTokens int64
}

// Add sums two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CachedTokens:     u.CachedTokens + o.CachedTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// Cost returns the USD cost of u. Cached prompt tokens are billed at the
// cached rate and the rest of the prompt at the input rate.
func (p Pricing) Cost(u Usage) float64 {
	cached := min(u.CachedTokens, u.PromptTokens)
	uncached := u.PromptTokens - cached
	return (float64(uncached)*p.Input +
		float64(cached)*p.CachedInput +
		float64(u.CompletionTokens)*p.Output) / 1_000_000
}
