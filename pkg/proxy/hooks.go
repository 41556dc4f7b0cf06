package proxy

import "net/http"

// Hooks are optional extension points around a single forward. For every
// request that reaches the upstream stage they run in a fixed order:
// BeforeSend, then exactly one of AfterReceive or OnError.
//
// Hooks run after the forwarder's own logging and header rewriting for the
// same stage.
type Hooks struct {
	// BeforeSend may mutate the outbound request (headers, not the URL)
	// just before it is written to the upstream.
	BeforeSend func(out *http.Request)

	// AfterReceive observes the upstream response before it is relayed.
	// Returning an error discards the response and takes the OnError path.
	AfterReceive func(resp *http.Response) error

	// OnError observes a forwarding failure before the error envelope is
	// written.
	OnError func(r *http.Request, err error)
}

// Chain returns Hooks that run each of hooks in order at every stage. The
// first AfterReceive error stops the chain.
func Chain(hooks ...Hooks) Hooks {
	return Hooks{
		BeforeSend: func(out *http.Request) {
			for _, h := range hooks {
				if h.BeforeSend != nil {
					h.BeforeSend(out)
				}
			}
		},
		AfterReceive: func(resp *http.Response) error {
			for _, h := range hooks {
				if h.AfterReceive != nil {
					if err := h.AfterReceive(resp); err != nil {
						return err
					}
				}
			}
			return nil
		},
		OnError: func(r *http.Request, err error) {
			for _, h := range hooks {
				if h.OnError != nil {
					h.OnError(r, err)
				}
			}
		},
	}
}
