package cost

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds the pricing table shared by the gateway and the ledger.
// Keeping a single table avoids drift between the cost billed to the
// agency and the cost shown in the client portal.
type Rates struct {
	Models  map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Default ModelRate            `yaml:"default" mapstructure:"default"`
}

// Calculator computes USD costs for model API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion computes the cost of one chat completion. Unrecognized model
// identifiers fall back to the default rate rather than erroring, so a
// provider-side model rename never breaks accounting.
func (c *Calculator) Completion(model string, inputTokens, outputTokens int) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		rate = c.rates.Default
	}

	inCost := (float64(inputTokens) / 1e6) * rate.Input
	outCost := (float64(outputTokens) / 1e6) * rate.Output

	return inCost + outCost
}

// DefaultRates returns the default pricing table.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
		},
		Default: ModelRate{Input: 2.50, Output: 10.00},
	}
}
