// Package questionbank serves interview questions from a local YAML file.
package questionbank

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/modeltext"
	"gopkg.in/yaml.v3"
)

// Bank maps roles to question lists. Roles are matched case-insensitively;
// unknown roles fall back to Default.
type Bank struct {
	Default []string            `yaml:"default"`
	Roles   map[string][]string `yaml:"roles"`

	count int
}

// Load reads a bank file. count limits how many questions a session gets;
// zero keeps every question.
func Load(path string, count int) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank %q: %w", path, err)
	}
	return Parse(data, count)
}

// Parse decodes a bank document.
func Parse(data []byte, count int) (*Bank, error) {
	var bank Bank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}

	roles := make(map[string][]string, len(bank.Roles))
	for role, prompts := range bank.Roles {
		roles[normalizeRole(role)] = modeltext.CleanQuestionList(prompts)
	}
	bank.Roles = roles
	bank.Default = modeltext.CleanQuestionList(bank.Default)
	bank.count = count

	if len(bank.Default) == 0 && len(bank.Roles) == 0 {
		return nil, fmt.Errorf("decode question bank: %w", interview.ErrNoQuestions)
	}
	return &bank, nil
}

// Questions returns the prompts for role. note is ignored.
func (b *Bank) Questions(_ context.Context, role string, _ string) ([]string, error) {
	prompts, ok := b.Roles[normalizeRole(role)]
	if !ok || len(prompts) == 0 {
		prompts = b.Default
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("no questions for role %q: %w", role, interview.ErrNoQuestions)
	}
	if b.count > 0 && len(prompts) > b.count {
		prompts = prompts[:b.count]
	}
	return append([]string(nil), prompts...), nil
}

// RoleNames lists configured roles.
func (b *Bank) RoleNames() []string {
	names := make([]string, 0, len(b.Roles))
	for role := range b.Roles {
		names = append(names, role)
	}
	return names
}

func normalizeRole(role string) string {
	return strings.ToLower(modeltext.Normalize(role))
}
