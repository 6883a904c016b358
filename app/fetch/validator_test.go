package fetch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsPublicURLs(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		hostname string
	}{
		{"http", "http://example.com", "example.com"},
		{"https with query", "https://example.com/path?query=1", "example.com"},
		{"port", "https://example.com:8080/api", "example.com"},
		{"public ip", "http://8.8.8.8", "8.8.8.8"},
		{"below 172.16/12", "http://172.15.0.1", "172.15.0.1"},
		{"above 172.16/12", "http://172.32.0.1", "172.32.0.1"},
		{"public ipv6", "http://[2606:4700::1111]/", "2606:4700::1111"},
		{"upper case scheme", "HTTPS://Example.com", "Example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Validate(tt.url)
			require.True(t, outcome.Valid, "expected %s to be accepted, got %q", tt.url, outcome.Reason)
			require.NotNil(t, outcome.URL)
			assert.Equal(t, tt.hostname, outcome.URL.Hostname())
			assert.Empty(t, outcome.Reason)
			assert.NoError(t, outcome.Err())
		})
	}
}

func TestValidateLeavesMappedIPv6LiteralsToTheNetwork(t *testing.T) {
	for _, rawURL := range []string{
		"http://[::ffff:127.0.0.1]/",
		"http://[::ffff:a9fe:a9fe]/",
		"http://[::]/",
	} {
		assert.True(t, Validate(rawURL).Valid, rawURL)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		url    string
		reason Reason
	}{
		{"not-a-url", ReasonInvalidFormat},
		{"example.com", ReasonInvalidFormat},
		{"http://", ReasonInvalidFormat},
		{"http://999.1.1.1", ReasonInvalidFormat},
		{"http://foo.123", ReasonInvalidFormat},
		{"file:///etc/passwd", ReasonScheme},
		{"ftp://ftp.example.com", ReasonScheme},
		{"javascript:alert(1)", ReasonScheme},
		{"gopher://example.com", ReasonScheme},
		{"http://localhost", ReasonLoopback},
		{"http://LOCALHOST:3000", ReasonLoopback},
		{"http://127.0.0.1", ReasonLoopback},
		{"http://0.0.0.0", ReasonLoopback},
		{"http://[::1]", ReasonLoopback},
		{"http://[0:0:0:0:0:0:0:1]/", ReasonLoopback},
		{"http://127.1", ReasonLoopback},
		{"http://2130706433", ReasonLoopback},
		{"http://0x7f.0.0.1", ReasonLoopback},
		{"http://169.254.169.254", ReasonMetadata},
		{"http://169.254.169.254/latest/meta-data/", ReasonMetadata},
		{"http://169.254.170.2", ReasonMetadata},
		{"http://[fd00:ec2::254]", ReasonMetadata},
		{"http://127.0.0.2", ReasonPrivateNetwork},
		{"http://10.0.0.1", ReasonPrivateNetwork},
		{"http://172.16.0.1", ReasonPrivateNetwork},
		{"http://172.31.255.255", ReasonPrivateNetwork},
		{"http://192.168.1.1", ReasonPrivateNetwork},
		{"http://169.254.1.1", ReasonPrivateNetwork},
		{"http://0.1.2.3", ReasonPrivateNetwork},
		{"http://012.0.0.1", ReasonPrivateNetwork},
		{"http://[fe80::1]", ReasonPrivateIPv6},
		{"http://[fc00::1]", ReasonPrivateIPv6},
		{"http://[FD12:3456::1]", ReasonPrivateIPv6},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			outcome := Validate(tt.url)
			assert.False(t, outcome.Valid)
			assert.Equal(t, tt.reason, outcome.Reason)
			assert.Nil(t, outcome.URL)

			err := outcome.Err()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))
			assert.Equal(t, string(tt.reason), err.Error())
		})
	}
}

func TestValidateMetadataReasonIsDistinct(t *testing.T) {
	metadata := Validate("http://169.254.169.254")
	linkLocal := Validate("http://169.254.1.1")

	assert.Equal(t, "Cloud metadata URLs are not allowed", string(metadata.Reason))
	assert.Equal(t, "Private network URLs are not allowed", string(linkLocal.Reason))
}

func TestValidatePrivateRangeBoundaries(t *testing.T) {
	for _, host := range []string{"172.15.255.255", "172.32.0.0", "11.0.0.1", "192.167.1.1", "169.253.1.1", "128.0.0.1"} {
		assert.True(t, Validate("http://"+host).Valid, host)
	}
	for _, host := range []string{"172.16.0.0", "172.20.10.10", "172.31.255.255", "10.255.255.255", "192.168.0.0"} {
		assert.False(t, Validate("http://"+host).Valid, host)
	}
}

func TestParseIPv4Host(t *testing.T) {
	tests := []struct {
		host   string
		want   string
		isIPv4 bool
		err    bool
	}{
		{host: "example.com"},
		{host: "localhost"},
		{host: "1.2.3.4", want: "1.2.3.4", isIPv4: true},
		{host: "1.2.3.4.", want: "1.2.3.4", isIPv4: true},
		{host: "0x7f000001", want: "127.0.0.1", isIPv4: true},
		{host: "017700000001", want: "127.0.0.1", isIPv4: true},
		{host: "192.168.257", want: "192.168.1.1", isIPv4: true},
		{host: "1.2.3.4.5", err: true},
		{host: "256.1.1.1", err: true},
		{host: "4294967296", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got, ok, err := parseIPv4Host(tt.host)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.isIPv4, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
