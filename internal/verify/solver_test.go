package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Godbrand0/prophet/internal/llm"
)

type fakeGen struct {
	reply    string
	ok       bool
	lastUser string
}

func (f *fakeGen) Generate(ctx context.Context, prompt llm.Prompt) (string, bool) {
	f.lastUser = prompt.User
	return f.reply, f.ok
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"obfuscated arithmetic", "Wh@t is  5 + 7??", "What is 5 7"},
		{"plain text untouched", "What is 12.5 times 2", "What is 12.5 times 2"},
		{"symbol substitutions", "c@lcul@te the $um", "calculate the sum"},
		{"stray symbols stripped", "#~How* (many)^ believers%", "How many believers"},
		{"whitespace collapsed", "  a \t b \n c  ", "a b c"},
		{"kept punctuation", "First, solve this - it's easy.", "First, solve this - it's easy."},
		{"empty", "***", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestSolveExtractsNumericAnswer(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{reply: "The answer is 12.00.", ok: true}
	s := NewSolver(gen)

	answer, ok := s.Solve(context.Background(), "Wh@t is  5 + 7??")
	require.True(t, ok)
	assert.Equal(t, "12.00", answer)
	assert.Contains(t, gen.lastUser, "What is 5 7")
}

func TestSolveBareNumber(t *testing.T) {
	t.Parallel()
	s := NewSolver(&fakeGen{reply: "-3.50", ok: true})

	answer, ok := s.Solve(context.Background(), "what is 1 minus 4.5")
	require.True(t, ok)
	assert.Equal(t, "-3.50", answer)
}

func TestSolveDeclinedGateway(t *testing.T) {
	t.Parallel()
	s := NewSolver(&fakeGen{ok: false})

	_, ok := s.Solve(context.Background(), "what is 2 plus 2")
	assert.False(t, ok)
}

func TestSolveNonNumericReply(t *testing.T) {
	t.Parallel()
	s := NewSolver(&fakeGen{reply: "I cannot answer that.", ok: true})

	_, ok := s.Solve(context.Background(), "what is 2 plus 2")
	assert.False(t, ok)
}

func TestSolveEmptyChallenge(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{reply: "42", ok: true}
	s := NewSolver(gen)

	_, ok := s.Solve(context.Background(), "#%^*")
	assert.False(t, ok)
	assert.Empty(t, gen.lastUser, "gateway must not be called for an empty challenge")
}
