// Package handlers provides the HTTP handlers a proxy instance serves
// locally rather than forwarding.
//
// Currently this is the liveness probe at /health:
//
//	GET /health
//
//	{
//	  "status": "healthy",
//	  "proxy": {"target": "http://localhost:3000", "listening": 8080},
//	  "timestamp": "2025-01-01T00:00:00.000Z"
//	}
//
// The probe reflects the configuration the instance was started with, so a
// reconfigured proxy reports its new target on the very next request.
package handlers
