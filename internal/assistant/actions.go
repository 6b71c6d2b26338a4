// Package assistant wraps the external AI completion protocol: threads,
// runs, bounded polling, and tool-call dispatch.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

// LocalHandler executes an action in-process.
type LocalHandler func(ctx context.Context, args map[string]any) (any, error)

// RemoteTarget describes an action executed by an outbound HTTP call.
type RemoteTarget struct {
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	AuthType string            `json:"auth_type,omitempty"`
	AuthKey  string            `json:"auth_key,omitempty"`
}

// Parameter describes one action argument for the assistant's tool schema.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Action is a named capability the assistant may request during a run:
// either a local handler or a remote HTTP descriptor.
type Action struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`

	Handler LocalHandler  `json:"-"`
	Remote  *RemoteTarget `json:"remote,omitempty"`
}

// Registry maps action names to their implementations. Populated at
// startup; resolved by name when a run requires action. No runtime code
// loading.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	client  *http.Client
	logger  *logger.Logger
}

// NewRegistry creates an empty action registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		actions: make(map[string]Action),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  log,
	}
}

// Register adds an action. An action must carry exactly one of a local
// handler or a remote target.
func (r *Registry) Register(a Action) error {
	if a.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if (a.Handler == nil) == (a.Remote == nil) {
		return fmt.Errorf("action %q must have exactly one of handler or remote target", a.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[a.Name] = a
	return nil
}

// LoadFile populates the registry with remote actions from a JSON config
// file of the form {"actions": {"name": {...}}}.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read actions config: %w", err)
	}

	var file struct {
		Actions map[string]struct {
			Description string        `json:"description"`
			Parameters  []Parameter   `json:"parameters"`
			Remote      *RemoteTarget `json:"remote"`
		} `json:"actions"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse actions config: %w", err)
	}

	for name, def := range file.Actions {
		if err := r.Register(Action{
			Name:        name,
			Description: def.Description,
			Parameters:  def.Parameters,
			Remote:      def.Remote,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a registered action by name.
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Execute resolves an action by name and runs it with the given arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	action, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("action %q not registered", name)
	}

	if action.Handler != nil {
		return action.Handler(ctx, args)
	}
	return r.executeRemote(ctx, action.Remote, args)
}

// Tools converts the registered actions to assistant tool definitions.
func (r *Registry) Tools() []openai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]openai.Tool, 0, len(r.actions))
	for _, action := range r.actions {
		properties := make(map[string]any, len(action.Parameters))
		var required []string
		for _, p := range action.Parameters {
			properties[p.Name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        action.Name,
				Description: action.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return tools
}

func (r *Registry) executeRemote(ctx context.Context, target *RemoteTarget, args map[string]any) (any, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action arguments: %w", err)
	}

	method := target.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	if target.AuthKey != "" {
		if target.AuthType == "" || target.AuthType == "bearer" {
			req.Header.Set("Authorization", "Bearer "+target.AuthKey)
		} else {
			req.Header.Set("Authorization", target.AuthKey)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("action request returned status %d", resp.StatusCode)
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode action response: %w", err)
	}
	return result, nil
}
