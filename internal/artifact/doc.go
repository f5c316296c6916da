// Package artifact stores generated class files.
//
// A Sink is a flat key space: the local filesystem, process memory or an
// S3 bucket (AWS or any S3-compatible server). Write places the header
// and source of one class under a prefix; WriteIndex adds index.json
// describing a whole batch.
//
// Open picks the sink from a target string:
//
//	out/cells          filesystem directory
//	memory:            in-process map
//	s3://bucket/prefix S3, configured from CELLC_S3_* variables
package artifact
