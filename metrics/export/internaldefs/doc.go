// Package internaldefs holds the shared metric name/help definitions used
// by the exporters. Not part of the public API.
package internaldefs
