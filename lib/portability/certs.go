/*
Copyright 2024 PyNinja Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package portability

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Certificate is one parsed `certbot certificates` record.
type Certificate struct {
	Name            string
	SerialNumber    string
	KeyType         string
	Domains         []string
	ExpiryDate      string
	ValidityDays    int
	CertificatePath string
	PrivateKeyPath  string
}

// CertificateStatus is the HTTP-status-carrying result of a certificate
// listing attempt, matching the agent's original CertificateStatus model:
// 403 when no host password is configured, 417 when certbot is absent,
// 204 when certbot reports none, 206 on a partial parse.
type CertificateStatus struct {
	StatusCode   int
	Description  string
	Certificates []Certificate
	RawLines     []string
}

// ParseCertificateOutput turns `certbot certificates` output into records.
//
// Unlike the agent's original parser, which only yields a record upon
// seeing a "Private Key Path:" line (silently dropping any block that
// lacks one), this buffers fields until the next "Certificate Name:"
// line and flushes whatever was collected so far — so a certbot record
// missing a private key path is still reported instead of vanishing.
func ParseCertificateOutput(output string, wsStream bool) []Certificate {
	var certs []Certificate
	var current *Certificate

	flush := func() {
		if current != nil && current.Name != "" {
			certs = append(certs, *current)
		}
		current = nil
	}

	for _, rawLine := range strings.Split(strings.TrimSpace(output), "\n") {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "Certificate Name:"):
			flush()
			current = &Certificate{Name: fieldValue(line)}
		case strings.HasPrefix(line, "Serial Number:"):
			if current != nil && !wsStream {
				current.SerialNumber = fieldValue(line)
			}
		case strings.HasPrefix(line, "Key Type:"):
			if current != nil {
				current.KeyType = fieldValue(line)
			}
		case strings.HasPrefix(line, "Domains:"):
			if current != nil {
				current.Domains = strings.Fields(fieldValue(line))
			}
		case strings.HasPrefix(line, "Expiry Date:"):
			if current != nil {
				expiry, validity := parseExpiryLine(line)
				current.ExpiryDate = expiry
				if n, err := strconv.Atoi(strings.Fields(validity)[0]); err == nil {
					current.ValidityDays = n
				}
			}
		case strings.HasPrefix(line, "Certificate Path:"):
			if current != nil && !wsStream {
				current.CertificatePath = fieldValue(line)
			}
		case strings.HasPrefix(line, "Private Key Path:"):
			if current != nil && !wsStream {
				current.PrivateKeyPath = fieldValue(line)
			}
		}
	}
	flush()
	return certs
}

func fieldValue(line string) string {
	parts := strings.SplitN(line, ": ", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseExpiryLine(line string) (expiry, validity string) {
	parts := strings.SplitN(line, ": ", 2)
	if len(parts) != 2 {
		return "", ""
	}
	rest := parts[1]
	before, after, found := strings.Cut(rest, "VALID")
	if !found {
		return strings.TrimSpace(rest), ""
	}
	expiry = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(before), "("))
	validity = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(after), ":"), ")")
	return expiry, strings.TrimSpace(validity)
}

// ListCertificates shells out to `certbot certificates` via sudo using the
// configured host password, and reports the HTTP-status-carrying outcome.
// hostOS == Windows is always rejected: certbot has no Windows story.
func ListCertificates(hostOS OS, certbotPath, hostPassword string, wsStream bool) CertificateStatus {
	if hostOS == Windows {
		return CertificateStatus{StatusCode: 403, Description: "Host is running Windows, cannot access certificates."}
	}
	if hostPassword == "" {
		return CertificateStatus{StatusCode: 403, Description: "'host_password' not stored, certificates cannot be accessed."}
	}
	if certbotPath == "" {
		return CertificateStatus{StatusCode: 417, Description: "'certbot' not installed."}
	}

	cmd := fmt.Sprintf("echo %s | sudo -S %s certificates", hostPassword, certbotPath)
	out, err := exec.Command("sh", "-c", cmd).Output()
	if err != nil {
		return CertificateStatus{StatusCode: 417, Description: err.Error()}
	}

	output := strings.TrimSpace(string(out))
	if output == "" || strings.Contains(output, "No certificates found") {
		return CertificateStatus{StatusCode: 204, Description: "No certificates found."}
	}

	certs := ParseCertificateOutput(output, wsStream)
	if len(certs) > 0 {
		return CertificateStatus{
			StatusCode:   200,
			Description:  "Successfully parsed all certificates.",
			Certificates: certs,
		}
	}
	return CertificateStatus{
		StatusCode:  206,
		Description: "Failed to parse some certificates.",
		RawLines:    strings.Split(output, "\n"),
	}
}
