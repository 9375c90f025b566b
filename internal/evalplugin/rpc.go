package evalplugin

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// RuleCheckerPlugin is the plugin.Plugin implementation dispensed by both
// sides of the handshake: the host uses it to obtain an RPC client, a task's
// evaluator_plugin binary uses it (with Impl set) to serve one.
type RuleCheckerPlugin struct {
	Impl RuleChecker
}

func (p *RuleCheckerPlugin) Server(*plugin.MuxBroker) (any, error) {
	return &ruleCheckerRPCServer{impl: p.Impl}, nil
}

func (p *RuleCheckerPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (any, error) {
	return &ruleCheckerRPCClient{client: c}, nil
}

type ruleCheckerRPCServer struct {
	impl RuleChecker
}

func (s *ruleCheckerRPCServer) Check(req CheckRequest, resp *CheckResponse) error {
	r, err := s.impl.Check(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

type ruleCheckerRPCClient struct {
	client *rpc.Client
}

func (c *ruleCheckerRPCClient) Check(req CheckRequest) (CheckResponse, error) {
	var resp CheckResponse
	err := c.client.Call("Plugin.Check", req, &resp)
	return resp, err
}
