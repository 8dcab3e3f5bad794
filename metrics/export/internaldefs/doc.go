// Package internaldefs holds the series names, bucket bounds and the [Source]
// interface shared by the Prometheus and OTel exporters, so both render
// identical series.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
