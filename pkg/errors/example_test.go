// Package errors provides examples of structured error handling.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	// Create a new error with type
	err := errors.New(errors.ErrorTypeConnection, "failed to connect to api")

	// Add context details
	err = err.WithDetail("host", "api.example.com").
		WithDetail("port", 443)

	fmt.Println(err.Error())

	// Output:
	// connection: failed to connect to api
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeStreamRead, "stream users failed").
		WithDetail("stream", "users")

	if errors.IsType(err, errors.ErrorTypeStreamRead) {
		fmt.Println("This is a stream read error")
	}

	// The cause stays reachable through the chain
	if errors.Is(err, io.EOF) {
		fmt.Println("Original error was EOF")
	}

	// Output:
	// This is a stream read error
	// Original error was EOF
}

// Example_sentinels shows matching configuration errors by kind.
func Example_sentinels() {
	err := errors.Newf(errors.ErrorTypeUnknownStream, "stream %q is not provided by the source", "invoices")

	fmt.Println(errors.Is(err, errors.ErrUnknownStream))
	fmt.Println(errors.Is(err, errors.ErrAmbiguousSlicing))

	// Output:
	// true
	// false
}

// ExampleDisplayMessage demonstrates the user-facing summary of a wrapped error.
func ExampleDisplayMessage() {
	cause := errors.New(errors.ErrorTypeConnection, "401 from upstream")
	err := errors.Wrap(cause, errors.ErrorTypeStreamRead, "read failed").
		WithDisplay("The API token for stream 'orders' has expired.")

	fmt.Println(errors.DisplayMessage(err))
	fmt.Println(err)

	// Output:
	// The API token for stream 'orders' has expired.
	// stream_read: read failed: connection: 401 from upstream
}

// ExampleIsType demonstrates checking error types.
func ExampleIsType() {
	connErr := errors.New(errors.ErrorTypeConnection, "connection failed")
	wrappedErr := errors.Wrap(connErr, errors.ErrorTypeStreamRead, "processing failed")

	fmt.Printf("Is connection error: %v\n", errors.IsType(connErr, errors.ErrorTypeConnection))

	// IsType reports the outermost structured error
	fmt.Printf("Wrapped error is stream_read type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeStreamRead))
	fmt.Printf("Wrapped error is connection type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeConnection))

	// Output:
	// Is connection error: true
	// Wrapped error is stream_read type: true
	// Wrapped error is connection type: false
}
