// Package resilience holds the shared vocabulary of the fault-tolerance layer:
// capability kinds, per-service descriptors, call outcome classes, and the
// error taxonomy used by the classifier, retry policy, circuit breaker, and
// gateway subpackages.
//
// Business-logic collaborators never talk to an external dependency directly;
// they go through a gateway built from these types. See the gateway package
// for the call surface and the health package for the aggregated view.
package resilience
