package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a Calculator client. Language errors come back as *types.Error.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, name string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out); err != nil {
		return nil, ErrorFromStatus(err)
	}
	return out, nil
}

// CreateSession creates a session. An empty id lets the server pick one.
func (c *Client) CreateSession(ctx context.Context, id, description string) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateSession", map[string]any{"session_id": id, "description": description})
}

// GetSession fetches a session; full includes its evaluation history.
func (c *Client) GetSession(ctx context.Context, id string, full bool) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSession", map[string]any{"session_id": id, "full": full})
}

// ListSessions returns every session.
func (c *Client) ListSessions(ctx context.Context) ([]*structpb.Struct, error) {
	out, err := c.invoke(ctx, "ListSessions", map[string]any{})
	if err != nil {
		return nil, err
	}
	var sessions []*structpb.Struct
	for _, v := range out.GetFields()["sessions"].GetListValue().GetValues() {
		sessions = append(sessions, v.GetStructValue())
	}
	return sessions, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, "DeleteSession", map[string]any{"session_id": id})
	return err
}

// ResetSession clears a session back to builtins.
func (c *Client) ResetSession(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, "ResetSession", map[string]any{"session_id": id})
	return err
}

// Evaluate evaluates expression in session, or statelessly if session is "".
func (c *Client) Evaluate(ctx context.Context, session, expression string) (float64, error) {
	out, err := c.invoke(ctx, "Evaluate", map[string]any{"session_id": session, "expression": expression})
	if err != nil {
		return 0, err
	}
	return out.GetFields()["result"].GetNumberValue(), nil
}

// EvaluateProgram evaluates program in session, or statelessly if session is "".
func (c *Client) EvaluateProgram(ctx context.Context, session, program string) ([]float64, error) {
	out, err := c.invoke(ctx, "EvaluateProgram", map[string]any{"session_id": session, "program": program})
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["results"].GetListValue().GetValues()
	results := make([]float64, len(values))
	for i, v := range values {
		results[i] = v.GetNumberValue()
	}
	return results, nil
}
