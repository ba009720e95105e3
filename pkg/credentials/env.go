// Package credentials resolves credential references handed to node executors.
package credentials

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dukex/runledger/pkg/protocol"
)

const DefaultPrefix = "RUNLEDGER_CREDENTIAL_"

var refPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// EnvResolver reads secrets from environment variables. The reference
// "openai.default" maps to RUNLEDGER_CREDENTIAL_OPENAI_DEFAULT.
type EnvResolver struct {
	prefix string
	lookup func(string) (string, bool)
}

func NewEnvResolver(prefix string) *EnvResolver {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &EnvResolver{prefix: prefix, lookup: os.LookupEnv}
}

// VariableName returns the environment variable holding ref.
func (r *EnvResolver) VariableName(ref string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(ref))

	return r.prefix + name
}

func (r *EnvResolver) Resolve(_ context.Context, ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("%w: malformed reference %q", protocol.ErrCredentialNotFound, ref)
	}

	secret, ok := r.lookup(r.VariableName(ref))
	if !ok || secret == "" {
		return "", fmt.Errorf("%w: %s", protocol.ErrCredentialNotFound, ref)
	}

	return secret, nil
}
