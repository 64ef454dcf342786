package execute

import (
	"fmt"
	"time"
)

// DefaultModule is the module name assumed for function actions that omit
// one in configuration.
const DefaultModule = "actions"

// DefaultRegistry returns a registry preloaded with the stock actions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(DefaultModule, "current_time", currentTime)
	r.Register(DefaultModule, "say", say)
	return r
}

func currentTime(_ map[string]string) (string, error) {
	return time.Now().Format("15:04:05"), nil
}

func say(params map[string]string) (string, error) {
	text, ok := params["text"]
	if !ok {
		return "", fmt.Errorf("say: missing text parameter")
	}
	return text, nil
}
