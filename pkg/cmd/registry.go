package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/runledger/pkg/credentials"
	"github.com/dukex/runledger/pkg/registry"
)

const nodeHTTPTimeout = 60 * time.Second

// NewRegistry registers every built-in node executor. Credentials are read
// from RUNLEDGER_CREDENTIAL_* environment variables.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	client := &http.Client{Timeout: nodeHTTPTimeout}

	if err := reg.RegisterDefaultNodes(credentials.NewEnvResolver(credentials.DefaultPrefix), client); err != nil {
		panic(err)
	}

	return reg
}
