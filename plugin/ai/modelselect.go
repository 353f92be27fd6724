package ai

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

var (
	languageNames = []string{
		"python", "golang", " go ", "java", "javascript", "typescript",
		"rust", "c++", "c#", "ruby", "php", "swift", "kotlin", "scala",
		"sql", "bash", "shell", "html", "css",
	}

	// Syntax fragments that almost never appear in prose.
	codeTokenRe = []*regexp.Regexp{
		regexp.MustCompile(`\bfunc\s+\w+\s*\(`),
		regexp.MustCompile(`\bdef\s+\w+\s*\(`),
		regexp.MustCompile(`\bfunction\s+\w+\s*\(`),
		regexp.MustCompile(`(?m)^\s*(import|from)\s+[\w."/]+`),
		regexp.MustCompile(`#include\s*<`),
		regexp.MustCompile(`\bconsole\.log\b`),
		regexp.MustCompile(`\w+\s*:?=\s*\w+\s*=>`),
		regexp.MustCompile(`\b(SELECT|INSERT|UPDATE|DELETE)\s+.+\s+(FROM|INTO|SET)\b`),
	}

	stackTraceRe = []*regexp.Regexp{
		regexp.MustCompile(`Traceback \(most recent call last\)`),
		regexp.MustCompile(`(?m)^\s*at [\w$.]+\(.*\)`),
		regexp.MustCompile(`(?m)^panic: `),
		regexp.MustCompile(`(?m)^goroutine \d+ \[`),
		regexp.MustCompile(`Exception in thread`),
		regexp.MustCompile(`\.go:\d+`),
		regexp.MustCompile(`File ".+", line \d+`),
	}

	actionVerbRe = regexp.MustCompile(`(?i)\b(write|implement|refactor|debug|fix|create|build|generate|optimize|convert|port)\b`)
)

// SelectModel routes a request to the code-tuned model when the combined
// request text looks like a programming task, and to the default model
// otherwise. Inputs are the user message, any system-prompt override and,
// for a reply, the target message's content.
func SelectModel(cfg *Config, parts ...string) string {
	combined := strings.TrimSpace(strings.Join(parts, "\n"))
	if combined == "" {
		return cfg.Model
	}
	if looksLikeCode(combined) {
		return cfg.CodeModel
	}
	if isCodingTask(combined) {
		return cfg.CodeModel
	}
	return cfg.Model
}

// looksLikeCode reports whether the text already contains code: a fenced or
// indented code block, recognizable syntax, or a stack trace.
func looksLikeCode(s string) bool {
	if hasCodeBlock(s) {
		return true
	}
	for _, re := range codeTokenRe {
		if re.MatchString(s) {
			return true
		}
	}
	for _, re := range stackTraceRe {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// isCodingTask reports whether the text asks for code to be produced: an
// action verb together with a named language or the word "code".
// Explanation-only requests carry no action verb and stay on the default
// model.
func isCodingTask(s string) bool {
	if !actionVerbRe.MatchString(s) {
		return false
	}
	lower := " " + strings.ToLower(s) + " "
	if strings.Contains(lower, "code") {
		return true
	}
	for _, lang := range languageNames {
		if strings.Contains(lower, lang) {
			return true
		}
	}
	return false
}

// hasCodeBlock walks the markdown AST looking for a code block node.
func hasCodeBlock(s string) bool {
	doc := goldmark.New().Parser().Parse(gtext.NewReader([]byte(s)))
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}
