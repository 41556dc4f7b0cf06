// Package server manages the lifecycle of the relay proxy listener.
//
// A Manager owns at most one running proxy instance: a TCP listener on the
// configured proxy port, an http.Server, and a forwarder bound to one
// upstream. Start, Stop and Reconfigure are serialized by a single lock;
// Status reads the same lock and always reflects the state left by the
// last completed transition.
//
// # Basic Usage
//
//	mgr := server.NewManager(server.Options{
//	    ShutdownTimeout: 5 * time.Second,
//	    Metrics:         collector,
//	    Observers:       []server.Observer{recorder},
//	})
//	defer mgr.Shutdown(context.Background())
//
//	res := mgr.Start(types.ProxyConfig{
//	    TargetHost: "localhost",
//	    TargetPort: 3000,
//	    ProxyPort:  8080,
//	})
//	if !res.Success {
//	    return errors.New(res.Error)
//	}
//
// # Transitions
//
//   - Start stops any running instance before binding, so restarting on the
//     same port never conflicts with itself. Binding is synchronous; a bind
//     failure leaves the manager stopped.
//   - Stop is idempotent.
//   - Reconfigure on a stopped manager binds nothing. On a running manager
//     it is a stop followed by a start under one lock.
//
// Every transition is logged, counted through Metrics and passed to each
// Observer.
//
// # Routes
//
// Each instance serves:
//   - GET /health - liveness with the instance's target and port
//   - everything else - forwarded to the target
//
// The middleware chain is, outermost first: recovery, request ID, access
// logging, CORS.
package server
