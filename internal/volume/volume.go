// Package volume defines the Volume entity and its variants (spec §3).
// It is a leaf package (no dependency on kv/metastore/objectstore) so
// that both the metastore and the object-store registry can import it
// without a cycle.
package volume

import "fmt"

// Kind enumerates the Volume variants.
type Kind string

const (
	KindS3       Kind = "S3"
	KindS3Tables Kind = "S3Tables"
	KindFile     Kind = "File"
	KindMemory   Kind = "Memory"
)

// Credentials holds either an access-key pair or a bearer token; exactly
// one should be set.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	AccessKeySecret string `json:"access_key_secret,omitempty"`
	Token           string `json:"token,omitempty"`
}

// S3Spec configures an S3 volume.
type S3Spec struct {
	Bucket      string      `json:"bucket"`
	Region      string      `json:"region,omitempty"`
	Endpoint    string      `json:"endpoint,omitempty"`
	Credentials Credentials `json:"credentials"`
}

// S3TablesSpec configures an AWS S3 Tables volume, identified by ARN.
type S3TablesSpec struct {
	ARN         string      `json:"arn"`
	Region      string      `json:"region,omitempty"`
	Credentials Credentials `json:"credentials"`
}

// FileSpec configures a local-filesystem volume.
type FileSpec struct {
	Path string `json:"path"`
}

// Volume is a named object-store endpoint. Exactly one of the *Spec
// fields is populated, selected by Kind.
type Volume struct {
	Ident      string        `json:"ident"`
	Kind       Kind          `json:"kind"`
	S3         *S3Spec       `json:"s3,omitempty"`
	S3Tables   *S3TablesSpec `json:"s3tables,omitempty"`
	File       *FileSpec     `json:"file,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Prefix returns the URL root under which this volume stores data.
func (v Volume) Prefix() string {
	switch v.Kind {
	case KindS3:
		return fmt.Sprintf("s3://%s", v.S3.Bucket)
	case KindS3Tables:
		return fmt.Sprintf("s3tables://%s", arnBucket(v.S3Tables.ARN))
	case KindFile:
		return fmt.Sprintf("file://%s", v.File.Path)
	case KindMemory:
		return fmt.Sprintf("memory://%s", v.Ident)
	default:
		return ""
	}
}

// Region returns the effective AWS region for S3/S3Tables volumes,
// defaulting to us-east-2 per spec §4.3 when unset.
func (v Volume) Region() string {
	var r string
	switch v.Kind {
	case KindS3:
		r = v.S3.Region
	case KindS3Tables:
		r = v.S3Tables.Region
	}
	if r == "" {
		return "us-east-2"
	}
	return r
}

// arnBucket returns the table-bucket name inside an S3Tables ARN: the
// resource portion after "bucket/". Prefix uses it as the URL host; the
// S3 client's bucket is derived separately, from the ARN's region.
func arnBucket(arn string) string {
	const marker = ":bucket/"
	for i := 0; i+len(marker) <= len(arn); i++ {
		if arn[i:i+len(marker)] == marker {
			return arn[i+len(marker):]
		}
	}
	return arn
}
