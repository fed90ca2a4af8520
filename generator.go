package promptflow

import "context"

// Generator turns a prompt into text. It serves generating nodes in remote mode.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Echo returns the prompt unchanged.
var Echo Generator = GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
	return prompt, nil
})
