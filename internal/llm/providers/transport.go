package providers

import (
	"context"
	"errors"
	"net"

	"github.com/dshills/textstorm/internal/llm"
)

// wrapTransport categorizes errors that never reached the API.
func wrapTransport(provider string, err error) error {
	cat := llm.CategoryUnknown
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		cat = llm.CategoryTimeout
	case errors.As(err, &ne) && ne.Timeout():
		cat = llm.CategoryTimeout
	case errors.As(err, &ne):
		cat = llm.CategoryNetwork
	}
	return &llm.Error{Category: cat, Provider: provider, Err: err}
}
