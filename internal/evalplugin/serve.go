package evalplugin

import "github.com/hashicorp/go-plugin"

// Serve runs impl as a go-plugin server; a task's evaluator_plugin main
// package calls this and never returns. Task authors importing this package
// get the handshake and wire-up for free, matching how the teacher's own
// examples/plugins/echo-llm/main.go wraps plugin.Serve for plugin authors.
func Serve(impl RuleChecker) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         pluginMap(impl),
	})
}
