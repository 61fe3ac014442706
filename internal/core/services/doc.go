// Package services contains the core application services: the scan
// orchestrator that walks libraries in the background, the reader that
// serves chaptered and paginated content, and the watcher that triggers
// rescans on filesystem changes.
package services
