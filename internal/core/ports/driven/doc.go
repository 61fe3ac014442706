// Package driven defines the outbound ports: interfaces the core services
// depend on and adapters implement (storage, extractors, deduplication,
// progress sinks).
package driven
