// SPDX-License-Identifier: MPL-2.0

// Package fetch retrieves package manifests and archives by URI.
//
// Supported locations are bare paths and file:// URIs (read from a volume),
// http:// and https:// URLs, and s3://bucket/key objects served by any
// S3-compatible store. A Router dispatches on the URI scheme, and a
// Publisher uploads freshly built packages to a bucket.
package fetch
