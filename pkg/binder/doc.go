// Package binder reads HTTP request bodies: strict JSON decoding for API
// requests and size-capped raw reads for signed webhook payloads.
package binder
