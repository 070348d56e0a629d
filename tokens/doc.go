// Package tokens provides token counting for prompt budgeting.
//
// Token estimation is based on the rule-of-thumb that approximately 4
// characters equals 1 token for English text and code. This gives a fast,
// deterministic estimate without requiring a model-specific tokenizer.
//
// The Counter interface provides token counting methods:
//
//	counter := tokens.NewEstimatingCounter()
//	count := counter.Count("Hello, world!")     // ~3 tokens
//	fits := counter.FitsInLimit("text", 1000)   // true if <= 1000 tokens
//
// For one-off counting, use the convenience function:
//
//	count := tokens.EstimateTokens("Hello, world!")
package tokens
