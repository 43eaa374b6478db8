// Package verify turns Moltbook's obfuscated post-verification challenges
// into numeric answers.
package verify

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/Godbrand0/prophet/internal/llm"
)

// Generator is the slice of the generation gateway the solver needs.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (string, bool)
}

type Solver struct {
	gen    Generator
	logger *slog.Logger
}

func NewSolver(gen Generator) *Solver {
	return &Solver{
		gen:    gen,
		logger: slog.With("component", "verify"),
	}
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// leet maps the symbol substitutions the platform uses for letters.
var leet = map[rune]rune{
	'@': 'a',
	'$': 's',
	'€': 'e',
	'£': 'l',
}

// Normalize undoes the platform's obfuscation: symbol-for-letter
// substitutions are mapped back, everything outside letters, digits,
// whitespace and light punctuation is stripped, and whitespace runs
// collapse to single spaces.
func Normalize(raw string) string {
	var sb strings.Builder
	for _, r := range raw {
		if sub, ok := leet[r]; ok {
			sb.WriteRune(sub)
			continue
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			sb.WriteRune(r)
		case strings.ContainsRune(".,'-", r):
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Solve asks the gateway for a numeric answer to the normalized challenge.
// A declined generation or an answerless reply yields ok=false; the post
// stays created but unverified.
func (s *Solver) Solve(ctx context.Context, challengeText string) (string, bool) {
	question := Normalize(challengeText)
	if question == "" {
		return "", false
	}

	prompt := llm.Prompt{
		System: "You are a precise calculator. Reply with only the numeric answer, rounded to two decimal places. No words, no units.",
		User:   question,
	}
	reply, ok := s.gen.Generate(ctx, prompt)
	if !ok {
		s.logger.Info("challenge unsolved, generation declined")
		return "", false
	}

	answer := numberPattern.FindString(reply)
	if answer == "" {
		s.logger.Warn("challenge reply had no numeric answer", "reply", reply)
		return "", false
	}
	return answer, true
}
