package slicing

import (
	"fmt"
)

// InjectInto names where a slice value is placed in an outgoing request.
type InjectInto string

const (
	InjectHeader           InjectInto = "header"
	InjectRequestParameter InjectInto = "request_parameter"
	InjectBodyData         InjectInto = "body_data"
	InjectBodyJSON         InjectInto = "body_json"
)

// Valid reports whether the target is one of the four known targets.
func (i InjectInto) Valid() bool {
	switch i {
	case InjectHeader, InjectRequestParameter, InjectBodyData, InjectBodyJSON:
		return true
	}
	return false
}

// RequestOption describes how a router injects one slice field.
type RequestOption struct {
	// Field is the request-side name (header name, query key, body key)
	Field      string     `yaml:"field_name" json:"field_name"`
	InjectInto InjectInto `yaml:"inject_into" json:"inject_into"`
}

// Validate checks the option is usable.
func (o RequestOption) Validate() error {
	if o.Field == "" {
		return fmt.Errorf("request option field is required")
	}
	if !o.InjectInto.Valid() {
		return fmt.Errorf("unknown inject_into %q", o.InjectInto)
	}
	return nil
}

// RequestOptions holds a contribution per injection target. The zero value
// is not usable; use NewRequestOptions.
type RequestOptions struct {
	Params   map[string]any
	Headers  map[string]any
	BodyData map[string]any
	BodyJSON map[string]any
}

// NewRequestOptions returns RequestOptions with all four maps empty.
func NewRequestOptions() RequestOptions {
	return RequestOptions{
		Params:   map[string]any{},
		Headers:  map[string]any{},
		BodyData: map[string]any{},
		BodyJSON: map[string]any{},
	}
}

// Set places value under opt.Field in the map selected by opt.InjectInto.
func (r RequestOptions) Set(opt *RequestOption, value any) {
	if opt == nil {
		return
	}
	if m := r.target(opt.InjectInto); m != nil {
		m[opt.Field] = value
	}
}

// MergeFrom copies other's entries into r. Keys already present in r keep
// their value, so earlier routers win on overlap.
func (r RequestOptions) MergeFrom(other RequestOptions) {
	mergeAbsent(r.Params, other.Params)
	mergeAbsent(r.Headers, other.Headers)
	mergeAbsent(r.BodyData, other.BodyData)
	mergeAbsent(r.BodyJSON, other.BodyJSON)
}

func (r RequestOptions) target(into InjectInto) map[string]any {
	switch into {
	case InjectHeader:
		return r.Headers
	case InjectRequestParameter:
		return r.Params
	case InjectBodyData:
		return r.BodyData
	case InjectBodyJSON:
		return r.BodyJSON
	}
	return nil
}

func mergeAbsent(dst, src map[string]any) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}
