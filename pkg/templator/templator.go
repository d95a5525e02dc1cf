package templator

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Placeholder tokens recognised in kickstart templates.
const (
	TokenServerName     = "<SERVER_NAME>"
	TokenIPAddress      = "<IP_ADDRESS>"
	TokenSubnetMask     = "<SUBNET_MASK>"
	TokenDefaultGateway = "<DEFAULT_GW>"
	TokenDNSServer      = "<DNS_SERVER>"
)

// Tokens lists the placeholders in substitution order.
var Tokens = []string{
	TokenServerName,
	TokenIPAddress,
	TokenSubnetMask,
	TokenDefaultGateway,
	TokenDNSServer,
}

// Vars holds the per-host values substituted for the tokens.
type Vars struct {
	ServerName     string
	IPAddress      string
	SubnetMask     string
	DefaultGateway string
	DNSServer      string
}

// Template is an immutable sequence of lines.
type Template struct {
	lines []string
}

// Parse reads a template, one entry per line with the terminator removed.
func Parse(r io.Reader) (Template, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return Template{}, err
	}

	return Template{lines: lines}, nil
}

// Rendered is a template with every token replaced for one host.
type Rendered []string

// Bytes joins the lines with LF endings regardless of platform.
func (r Rendered) Bytes() []byte {
	var buf bytes.Buffer
	for _, line := range r {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Render substitutes every token occurrence on every line in a single pass.
// Substituted values are not scanned again, so a value that happens to
// contain a token literal is copied verbatim.
func Render(t Template, v Vars) Rendered {
	replacer := strings.NewReplacer(
		TokenServerName, v.ServerName,
		TokenIPAddress, v.IPAddress,
		TokenSubnetMask, v.SubnetMask,
		TokenDefaultGateway, v.DefaultGateway,
		TokenDNSServer, v.DNSServer,
	)

	out := make(Rendered, len(t.lines))
	for i, line := range t.lines {
		out[i] = replacer.Replace(line)
	}
	return out
}
