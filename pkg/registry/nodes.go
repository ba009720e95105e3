package registry

import (
	"net/http"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/nodes/aiprovider"
	"github.com/dukex/runledger/pkg/nodes/httprequest"
	nodelog "github.com/dukex/runledger/pkg/nodes/log"
	"github.com/dukex/runledger/pkg/nodes/transform"
	"github.com/dukex/runledger/pkg/nodes/trigger"
	"github.com/dukex/runledger/pkg/protocol"
)

// RegisterDefaultNodes registers every built-in node executor.
func (r *Registry) RegisterDefaultNodes(credentials protocol.CredentialResolver, client *http.Client) error {
	executors := []protocol.NodeExecutor{
		trigger.NewExecutor(models.NodeTypeManualTrigger),
		trigger.NewExecutor(models.NodeTypeWebhookTrigger),
		trigger.NewExecutor(models.NodeTypeScheduleTrigger),
		httprequest.NewExecutor(client, credentials),
		aiprovider.NewExecutor(credentials, nil),
		nodelog.NewExecutor(r.logger),
		transform.NewExecutor(),
	}

	for _, executor := range executors {
		if err := r.Register(executor); err != nil {
			return err
		}
	}

	return nil
}
