package filter

import (
	"sync"
)

// AhoCorasickMatch represents a match found by Aho-Corasick algorithm.
type AhoCorasickMatch struct {
	Word     string
	Position int
	Category string
}

// PatternInfo stores metadata about a pattern.
type PatternInfo struct {
	Word     string
	Category string
}

// ahoCorasickNode represents a node in the Aho-Corasick automaton.
type ahoCorasickNode struct {
	children map[rune]*ahoCorasickNode
	failLink *ahoCorasickNode
	output   []PatternInfo
}

// AhoCorasick implements the Aho-Corasick string matching algorithm.
// Patterns and searched text are both passed through Normalize, so matching
// is case-insensitive and whitespace-tolerant.
type AhoCorasick struct {
	root *ahoCorasickNode
	mu   sync.RWMutex
}

// NewAhoCorasick creates a new Aho-Corasick automaton.
func NewAhoCorasick() *AhoCorasick {
	return &AhoCorasick{
		root: newAhoCorasickNode(),
	}
}

// NewAhoCorasickFrom creates an automaton already built from patterns.
func NewAhoCorasickFrom(patterns []PatternInfo) *AhoCorasick {
	ac := NewAhoCorasick()
	ac.Build(patterns)
	return ac
}

func newAhoCorasickNode() *ahoCorasickNode {
	return &ahoCorasickNode{
		children: make(map[rune]*ahoCorasickNode),
	}
}

// Build builds the automaton from a list of patterns.
func (ac *AhoCorasick) Build(patterns []PatternInfo) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.root = newAhoCorasickNode()
	for _, pattern := range patterns {
		ac.addPattern(pattern)
	}
	ac.buildFailLinks()
}

// addPattern adds a single pattern to the trie.
func (ac *AhoCorasick) addPattern(pattern PatternInfo) {
	normalizedWord := Normalize(pattern.Word)
	if normalizedWord == "" {
		return
	}

	node := ac.root
	for _, char := range normalizedWord {
		if _, ok := node.children[char]; !ok {
			node.children[char] = newAhoCorasickNode()
		}
		node = node.children[char]
	}
	pattern.Word = normalizedWord
	node.output = append(node.output, pattern)
}

// buildFailLinks builds the fail links for the automaton using BFS.
func (ac *AhoCorasick) buildFailLinks() {
	queue := make([]*ahoCorasickNode, 0)

	for _, child := range ac.root.children {
		child.failLink = ac.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for char, child := range current.children {
			queue = append(queue, child)

			// Longest proper suffix that is also a prefix.
			failNode := current.failLink
			for failNode != nil && failNode.children[char] == nil {
				failNode = failNode.failLink
			}

			if failNode == nil {
				child.failLink = ac.root
			} else {
				child.failLink = failNode.children[char]
				child.output = append(child.output, child.failLink.output...)
			}
		}
	}
}

// Search searches for all patterns in the given text.
func (ac *AhoCorasick) Search(text string) []AhoCorasickMatch {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	matches := make([]AhoCorasickMatch, 0)
	node := ac.root
	position := 0

	for _, char := range Normalize(text) {
		node = ac.step(node, char)
		for _, pattern := range node.output {
			matches = append(matches, AhoCorasickMatch{
				Word:     pattern.Word,
				Position: position - len([]rune(pattern.Word)) + 1,
				Category: pattern.Category,
			})
		}
		position++
	}

	return matches
}

// step follows fail links until char can be consumed, falling back to root.
func (ac *AhoCorasick) step(node *ahoCorasickNode, char rune) *ahoCorasickNode {
	for node != nil && node.children[char] == nil {
		node = node.failLink
	}
	if node == nil {
		return ac.root
	}
	return node.children[char]
}
