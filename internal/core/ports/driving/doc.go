// Package driving defines the inbound ports: the operations the CLI (and
// any future surface) invokes on the core services.
package driving
