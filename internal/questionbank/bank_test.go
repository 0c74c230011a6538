package questionbank

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/stretchr/testify/require"
)

const sample = `
default:
  - Tell me about yourself.
  - What is your greatest strength?
roles:
  Backend  Engineer:
    - How do you design an idempotent API?
    - Describe a production incident you handled.
    - "  "
    - How would you shard a database?
  product manager: []
`

func TestQuestionsByRole(t *testing.T) {
	t.Parallel()

	bank, err := Parse([]byte(sample), 0)
	require.NoError(t, err)

	prompts, err := bank.Questions(context.Background(), "backend engineer", "")
	require.NoError(t, err)
	require.Equal(t, []string{
		"How do you design an idempotent API?",
		"Describe a production incident you handled.",
		"How would you shard a database?",
	}, prompts)
}

func TestQuestionsFallsBackToDefault(t *testing.T) {
	t.Parallel()

	bank, err := Parse([]byte(sample), 0)
	require.NoError(t, err)

	for _, role := range []string{"designer", "product manager"} {
		prompts, err := bank.Questions(context.Background(), role, "")
		require.NoError(t, err)
		require.Len(t, prompts, 2)
	}
}

func TestQuestionsHonorsCount(t *testing.T) {
	t.Parallel()

	bank, err := Parse([]byte(sample), 2)
	require.NoError(t, err)

	prompts, err := bank.Questions(context.Background(), "Backend Engineer", "")
	require.NoError(t, err)
	require.Len(t, prompts, 2)
}

func TestParseRejectsEmptyBank(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("default: []\n"), 0)
	require.ErrorIs(t, err, interview.ErrNoQuestions)

	_, err = Parse([]byte("roles: [oops"), 0)
	require.ErrorContains(t, err, "decode question bank")
}

func TestLoadAndRoleNames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	bank, err := Load(path, 0)
	require.NoError(t, err)
	names := bank.RoleNames()
	sort.Strings(names)
	require.Equal(t, []string{"backend engineer", "product manager"}, names)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), 0)
	require.Error(t, err)
}
