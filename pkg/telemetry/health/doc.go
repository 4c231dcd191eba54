// Package health implements liveness and readiness probes.
//
// Liveness only says the process is up. Readiness runs every registered
// CheckFunc with a per-check timeout:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("history", store.Ping)
//	router.HandleFunc("/readyz", checker.ReadinessHandler())
package health
