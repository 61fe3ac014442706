// Package domain contains the core business types for Lectern: libraries,
// books, chapters, content fingerprints and scan tasks. It has no
// dependencies on adapters or services.
package domain
