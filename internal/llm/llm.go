package llm

import "context"

type Kind int

const (
	KindText Kind = iota
	KindStructured
)

func (k Kind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "text"
}

// Schema is a JSON schema the model output must conform to.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

type Request struct {
	System      string
	Prompt      string
	Schema      *Schema
	Temperature float64
}

// Response carries the raw model output. Kind is KindStructured only when the request was sent with a
// schema contract, in which case Content is the JSON document.
type Response struct {
	Kind    Kind
	Content string
	Model   string
}

type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
