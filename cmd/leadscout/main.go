// Command leadscout classifies South African business leads by probable
// ethnicity, cascading through a rule-based dictionary, phonetic family
// matching, learned patterns, and an LLM as a last resort, with
// crash-safe resume across batches.
package main

func main() {
	Execute()
}
