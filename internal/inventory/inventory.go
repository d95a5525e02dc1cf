// Package inventory reads the lab server list: a header line followed by
// one `name,ip,subnet_mask,gateway,dns` line per host.
package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	Delimiter = ","
	numFields = 5
)

var ErrInvalidInventory = errors.New("invalid inventory")

type HostRecord struct {
	Name       string `yaml:"name"`
	IP         string `yaml:"ip"`
	SubnetMask string `yaml:"subnet_mask"`
	Gateway    string `yaml:"gateway"`
	DNS        string `yaml:"dns"`
}

type Inventory struct {
	// Header is the first line split on the delimiter. It is informational.
	Header []string
	Hosts  []HostRecord
}

func Load(path string) (*Inventory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory %s: %w", path, err)
	}
	defer file.Close()

	inv, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inv, nil
}

// Parse reads an inventory. Any host line with fewer than five fields
// rejects the whole inventory; fields past the fifth are ignored.
func Parse(r io.Reader) (*Inventory, error) {
	scanner := bufio.NewScanner(r)

	inv := &Inventory{}
	lineNo := 0
	sawHeader := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if !sawHeader {
			inv.Header = splitFields(line)
			sawHeader = true
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := splitFields(line)
		if len(fields) < numFields {
			return nil, fmt.Errorf("%w: line %d has %d field(s), want %d: %q",
				ErrInvalidInventory, lineNo, len(fields), numFields, line)
		}

		host := HostRecord{
			Name:       fields[0],
			IP:         fields[1],
			SubnetMask: fields[2],
			Gateway:    fields[3],
			DNS:        fields[4],
		}
		if host.Name == "" {
			return nil, fmt.Errorf("%w: line %d has an empty host name", ErrInvalidInventory, lineNo)
		}

		inv.Hosts = append(inv.Hosts, host)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInventory)
	}

	return inv, nil
}

func splitFields(line string) []string {
	fields := strings.Split(line, Delimiter)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
