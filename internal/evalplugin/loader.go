package evalplugin

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

func pluginMap(impl RuleChecker) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		pluginMapKey: &RuleCheckerPlugin{Impl: impl},
	}
}

// Client is a running per-task evaluator_plugin process.
type Client struct {
	checker RuleChecker
	process *plugin.Client
}

// Load starts the executable at path as a go-plugin subprocess and
// dispenses its RuleChecker, following the teacher's GRPCLoader.Load shape
// (plugins/grpc/loader.go): build a plugin.ClientConfig, obtain the RPC
// client, dispense by name, wrap it.
func Load(path string) (*Client, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "saotribench-evaluator-plugin",
		Level:  hclog.Warn,
		Output: nil,
	})

	process := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          pluginMap(nil),
		Cmd:              exec.Command(path),
		Logger:           logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := process.Client()
	if err != nil {
		process.Kill()
		return nil, fmt.Errorf("evalplugin: connecting to %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(pluginMapKey)
	if err != nil {
		process.Kill()
		return nil, fmt.Errorf("evalplugin: dispensing rule_checker from %s: %w", path, err)
	}

	checker, ok := raw.(RuleChecker)
	if !ok {
		process.Kill()
		return nil, fmt.Errorf("evalplugin: %s does not implement RuleChecker", path)
	}

	return &Client{checker: checker, process: process}, nil
}

// Check delegates to the plugin process.
func (c *Client) Check(req CheckRequest) (CheckResponse, error) {
	return c.checker.Check(req)
}

// Close terminates the plugin subprocess.
func (c *Client) Close() {
	c.process.Kill()
}
