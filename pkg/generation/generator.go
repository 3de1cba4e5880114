// Package generation provides clients for the content-generation
// providers the automation runner delegates to.
package generation

import (
	"context"
	"fmt"
)

// Request describes one unit of content to generate. Rules is the
// automation's opaque rules payload; providers may read hints from it
// but must tolerate anything being absent.
type Request struct {
	Platform    string
	Topic       string
	Rules       map[string]interface{}
	StyleLocked bool
}

// Result is the provider's output for one generation call.
type Result struct {
	Body     string
	Provider string
	Model    string
}

// Generator defines the interface for content-generation providers.
// Use this interface for dependency injection to enable mocking in tests.
// Calls may fail or stall; callers must pass a bounded context.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Result, error)

	// Name returns the provider identifier for logging.
	Name() string
}

func buildPrompt(req *Request) (system string, user string) {
	system = "You are a social media copywriter. Write a single post, no preamble."
	if req.StyleLocked {
		system += " Keep the established tone and hashtags unchanged."
	}

	platform := req.Platform
	if platform == "" {
		platform = "linkedin"
	}
	topic := req.Topic
	if topic == "" {
		topic = "General"
	}
	user = fmt.Sprintf("Write a %s post about: %s", platform, topic)

	if req.Rules != nil {
		if audience, ok := req.Rules["audience"].(string); ok && audience != "" {
			user += fmt.Sprintf("\nTarget audience: %s", audience)
		}
		if tone, ok := req.Rules["tone"].(string); ok && tone != "" {
			user += fmt.Sprintf("\nTone: %s", tone)
		}
	}
	return system, user
}
