package filesource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URI(t *testing.T) {
	bucket, key, err := parseS3URI("s3://my-bucket/path/to/file.dta")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file.dta", key)
}

func TestParseS3URI_Malformed(t *testing.T) {
	for _, uri := range []string{
		"not-s3://bucket/key",
		"s3://bucket-only",
		"s3:///key-without-bucket",
		"s3://bucket-without-key/",
	} {
		_, _, err := parseS3URI(uri)
		assert.Error(t, err, uri)
	}
}
