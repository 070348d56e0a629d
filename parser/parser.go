// Package parser extracts structured content from model responses:
// fenced code blocks for /patch and /snippet, and JSON payloads.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CodeBlock represents a fenced code block.
type CodeBlock struct {
	// Language is the specifier after the opening fence (e.g. "go").
	Language string

	// Content is the code inside the block, excluding fences.
	Content string
}

// Parser extracts structured content from model responses.
type Parser struct {
	codeBlockRegex *regexp.Regexp
}

// New creates a parser with compiled patterns.
func New() *Parser {
	return &Parser{
		codeBlockRegex: regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```"),
	}
}

// CodeBlocks finds all fenced code blocks in the response.
func (p *Parser) CodeBlocks(response string) []CodeBlock {
	matches := p.codeBlockRegex.FindAllStringSubmatch(response, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, match := range matches {
		if len(match) >= 3 {
			blocks = append(blocks, CodeBlock{
				Language: match[1],
				Content:  strings.TrimRight(match[2], "\n"),
			})
		}
	}
	return blocks
}

// FirstCode returns the first code block with the given language.
// An empty language matches any block. Returns "" if none is found.
func (p *Parser) FirstCode(response, language string) string {
	for _, block := range p.CodeBlocks(response) {
		if language == "" || block.Language == language {
			return block.Content
		}
	}
	return ""
}

// HasCodeBlock reports whether the response contains any fenced block.
func (p *Parser) HasCodeBlock(response string) bool {
	return p.codeBlockRegex.MatchString(response)
}

// JSON extracts and parses the first JSON object found in a code block
// (language "json" or unspecified). Returns nil if none parses.
func (p *Parser) JSON(response string) map[string]any {
	for _, block := range p.CodeBlocks(response) {
		if block.Language != "json" && block.Language != "" {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(block.Content), &data); err == nil {
			return data
		}
	}
	return nil
}

// WithoutCode returns the response with all code blocks removed.
func (p *Parser) WithoutCode(response string) string {
	return p.codeBlockRegex.ReplaceAllString(response, "")
}

// FirstCode is a convenience function using a default parser.
func FirstCode(response, language string) string {
	return New().FirstCode(response, language)
}
