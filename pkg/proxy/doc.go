// Package proxy forwards HTTP traffic from a local listener to a single
// upstream target.
//
// A Forwarder is bound to one types.ProxyConfig. Every request it receives
// is relayed to http://TargetHost:TargetPort with the original method, path,
// query string and headers. The Host header is rewritten to the target
// address and hop-by-hop headers are removed.
//
// # Body Re-framing
//
// POST, PUT and PATCH requests whose Content-Type is JSON (application/json
// or any +json type) or application/x-www-form-urlencoded are decoded before
// forwarding and re-encoded as compact JSON. The outbound request then
// carries Content-Type: application/json and a Content-Length equal to the
// exact byte length of the new body:
//
//	client:   POST /items  Content-Type: application/x-www-form-urlencoded
//	          name=relay&tag=a&tag=b
//	upstream: POST /items  Content-Type: application/json  Content-Length: 32
//	          {"name":"relay","tag":["a","b"]}
//
// All other bodies are streamed to the upstream unchanged.
//
// # Error Handling
//
// A structured body that cannot be decoded is answered locally with 400,
// and one larger than Options.MaxBodyBytes with 413. A failure to reach or
// read from the upstream is answered with 500. All three use the same JSON
// envelope:
//
//	{
//	  "error": "Proxy Error",
//	  "message": "dial tcp 127.0.0.1:3000: connect: connection refused",
//	  "target": "http://localhost:3000",
//	  "timestamp": "2025-01-01T00:00:00.000Z"
//	}
//
// # Hooks
//
// Options.Hooks observe each forward. BeforeSend runs on the outbound
// request, then exactly one of AfterReceive or OnError runs.
//
//	f, err := proxy.NewForwarder(cfg, proxy.Options{
//	    Hooks: proxy.Hooks{
//	        BeforeSend: func(out *http.Request) {
//	            out.Header.Set("X-Relay", "1")
//	        },
//	    },
//	})
//
// # Thread Safety
//
// A Forwarder is safe for concurrent use. It owns its upstream transport;
// call CloseIdleConnections when the forwarder is retired.
package proxy
