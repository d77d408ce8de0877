package dispatch_test

import (
	"context"
	"fmt"
	"iter"

	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/dispatch"
	"github.com/ajitpratap0/nebula-dispatch/pkg/slicing"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

type owners struct{}

func (owners) Name() string { return "owners" }

func (owners) Slices(ctx context.Context, _ stream.State) iter.Seq2[slicing.Slice, error] {
	r := &slicing.ListRouter{CursorField: "owner", Values: []any{"customer", "store"}}
	return r.StreamSlices(ctx)
}

func (owners) ReadSlice(_ context.Context, slice slicing.Slice, _ stream.State) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		yield(stream.Record{Data: map[string]any{"owner": slice["owner"]}}, nil)
	}
}

type source struct{}

func (source) Spec(context.Context) (*dispatch.Spec, error) {
	return &dispatch.Spec{Name: "example"}, nil
}

func (source) Check(context.Context, config.ConnectorConfig) (*dispatch.ConnectionStatus, error) {
	return &dispatch.ConnectionStatus{Status: dispatch.CheckSucceeded}, nil
}

func (source) Streams(context.Context, config.ConnectorConfig) ([]stream.Stream, error) {
	return []stream.Stream{owners{}}, nil
}

func ExampleDispatcher_Read() {
	d := dispatch.New(source{}, config.NewDispatchConfig("example"))
	catalog := &stream.Catalog{Streams: []stream.ConfiguredStream{{Name: "owners"}}}

	for msg, err := range d.Read(context.Background(), nil, catalog, nil) {
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		switch msg.Type {
		case dispatch.MessageRecord:
			fmt.Println(msg.Type, msg.Record.Data["owner"])
		case dispatch.MessageStreamStatus:
			fmt.Println(msg.Type, msg.Status.Status)
		}
	}

	// Output:
	// STREAM_STATUS STARTED
	// STREAM_STATUS RUNNING
	// RECORD customer
	// RECORD store
	// STREAM_STATUS COMPLETE
}
