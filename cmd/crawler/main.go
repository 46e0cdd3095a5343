// Package main provides the entry point for the citation crawler.
//
// The crawler starts from one seed publication, scores every visited
// publication against a keyword list and keeps the best scoring ones in a
// text file that is rewritten as the set improves.
//
// Usage:
//
//	crawler --config config.json
package main

func main() {
	Execute()
}
