package portability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanSizeWholeNumberDropsDecimal(t *testing.T) {
	assert.Equal(t, "2 KB", HumanSize(2048))
}

func TestHumanSizeNonWholeKeepsDecimal(t *testing.T) {
	assert.Equal(t, "1.46 KB", HumanSize(1500))
}

func TestHumanSizeZero(t *testing.T) {
	assert.Equal(t, "0 B", HumanSize(0))
}

func TestParseHumanSizeRoundTrips(t *testing.T) {
	n, err := ParseHumanSize("2 KB")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), n)
}

func TestCurrentRefusesUnknownGOOS(t *testing.T) {
	// Current() only ever returns an error for a runtime.GOOS this binary
	// was never built for, which can't be exercised directly in-process;
	// this documents the contract instead of faking runtime.GOOS.
	os, err := Current()
	if err != nil {
		assert.Contains(t, err.Error(), "unsupported operating system")
		return
	}
	assert.Contains(t, []OS{Linux, Darwin, Windows}, os)
}

func TestOSString(t *testing.T) {
	assert.Equal(t, "linux", Linux.String())
	assert.Equal(t, "darwin", Darwin.String())
	assert.Equal(t, "windows", Windows.String())
}

func TestParseCertificateOutputBuffersWithoutPrivateKeyPath(t *testing.T) {
	// Unlike the block this was grounded on, a record missing a private
	// key path must still be yielded once the next certificate starts.
	output := `Certificate Name: example.com
  Serial Number: abc123
  Key Type: RSA
  Domains: example.com www.example.com
  Expiry Date: 2026-01-01 00:00:00+00:00 (VALID: 89 days)
  Certificate Path: /etc/letsencrypt/live/example.com/fullchain.pem
Certificate Name: second.com
  Serial Number: def456
  Key Type: ECDSA
  Domains: second.com
  Expiry Date: 2026-02-01 00:00:00+00:00 (VALID: 120 days)
  Certificate Path: /etc/letsencrypt/live/second.com/fullchain.pem
  Private Key Path: /etc/letsencrypt/live/second.com/privkey.pem`

	certs := ParseCertificateOutput(output, false)
	require.Len(t, certs, 2)
	assert.Equal(t, "example.com", certs[0].Name)
	assert.Empty(t, certs[0].PrivateKeyPath)
	assert.Equal(t, 89, certs[0].ValidityDays)
	assert.Equal(t, "second.com", certs[1].Name)
	assert.Equal(t, "/etc/letsencrypt/live/second.com/privkey.pem", certs[1].PrivateKeyPath)
}

func TestParseCertificateOutputWsStreamOmitsSensitiveFields(t *testing.T) {
	output := `Certificate Name: example.com
  Serial Number: abc123
  Certificate Path: /etc/letsencrypt/live/example.com/fullchain.pem
  Private Key Path: /etc/letsencrypt/live/example.com/privkey.pem`

	certs := ParseCertificateOutput(output, true)
	require.Len(t, certs, 1)
	assert.Empty(t, certs[0].SerialNumber)
	assert.Empty(t, certs[0].CertificatePath)
	assert.Empty(t, certs[0].PrivateKeyPath)
}

func TestListCertificatesForbiddenWithoutHostPassword(t *testing.T) {
	status := ListCertificates(Linux, "/usr/bin/certbot", "", false)
	assert.Equal(t, 403, status.StatusCode)
}

func TestListCertificatesExpectationFailedWithoutCertbot(t *testing.T) {
	status := ListCertificates(Linux, "", "hunter2", false)
	assert.Equal(t, 417, status.StatusCode)
}

func TestListCertificatesForbiddenOnWindows(t *testing.T) {
	status := ListCertificates(Windows, "/usr/bin/certbot", "hunter2", false)
	assert.Equal(t, 403, status.StatusCode)
}

func TestLsblkJSONShapeParsesBlockDevices(t *testing.T) {
	sample := []byte(`{"blockdevices":[
		{"name":"sda","size":"20G","type":"disk","model":"VBOX HARDDISK","mountpoint":null,
		 "children":[{"name":"sda1","mountpoint":"/"}]},
		{"name":"sr0","size":"1024M","type":"rom","model":"","mountpoint":null}
	]}`)
	var parsed lsblkOutput
	require.NoError(t, json.Unmarshal(sample, &parsed))
	require.Len(t, parsed.BlockDevices, 2)
	assert.Equal(t, "disk", parsed.BlockDevices[0].Type)
	assert.Equal(t, "/", parsed.BlockDevices[0].Children[0].Mountpoint)
}
