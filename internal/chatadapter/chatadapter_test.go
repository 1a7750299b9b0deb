package chatadapter

import (
	"context"
	"errors"
	"testing"
)

func TestAddMessageNeverThrowsOnSinkFailure(t *testing.T) {
	var captured error
	a := &LoggingAdapter{
		Sink: func(ctx context.Context, role Role, content string, meta map[string]interface{}) error {
			return errors.New("boom")
		},
		OnFailure: func(err error) { captured = err },
	}
	a.AddMessage(context.Background(), RoleUser, "hello", nil)
	if captured == nil {
		t.Fatalf("expected OnFailure to be invoked")
	}
}

func TestAddMessageNoSinkIsNoop(t *testing.T) {
	a := &LoggingAdapter{}
	a.AddMessage(context.Background(), RoleTool, "x", nil)
}
