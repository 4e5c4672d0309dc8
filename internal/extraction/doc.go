// Package extraction turns web search results into raw supplier mentions.
//
// Two families of extractor are provided:
//   - HeuristicExtractor: weighted regex patterns over result titles and
//     snippets, each capturing a capitalized company-name phrase
//   - LLMExtractor: asks a chat-completion model to list suppliers as JSON,
//     one request per search result
//
// Extractors never deduplicate. They emit one Mention per observation with
// its pattern weight or model confidence, the result link as source, and a
// short context. Deduplication is the job of package dedup.
//
// # Usage
//
//	extractor, err := extraction.NewExtractor(extraction.DefaultConfig(), logger)
//	mentions, err := extractor.Extract(ctx, "Tesco", results)
//
// # Pattern Configuration
//
// Patterns are regular expressions containing the {supplier} placeholder,
// which is replaced with the company-name capture before compilation.
// Keyword parts should use (?i:...) so that the capture itself stays
// case-sensitive and only matches capitalized names.
package extraction
