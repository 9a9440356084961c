package model

import (
	"fmt"
	"net/netip"
	"strings"
)

// HTTPTarget is a single HTTP-style scan target.
type HTTPTarget struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// IPTarget is a single IP-style scan target. IP holds an address or a CIDR
// network.
type IPTarget struct {
	IP   string `json:"ip"`
	Port int    `json:"port,omitempty"`
}

// Validate checks that IP parses as an address or network and that the port,
// if set, is in range.
func (t IPTarget) Validate() error {
	if err := validateAddrOrCIDR(t.IP); err != nil {
		return err
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("port %d out of range", t.Port)
	}
	return nil
}

// JobPayload is the data handed from a completed node to its downstream
// dispatch targets. It is transient dispatch content, not persisted beyond
// the run.
type JobPayload struct {
	HTTP []HTTPTarget `json:"http,omitempty"`
	IP   []IPTarget   `json:"ip,omitempty"`
}

// Empty reports whether the payload carries no targets at all.
func (p *JobPayload) Empty() bool {
	return p == nil || (len(p.HTTP) == 0 && len(p.IP) == 0)
}

func validateAddrOrCIDR(s string) error {
	if s == "" {
		return fmt.Errorf("ip is empty")
	}
	if strings.Contains(s, "/") {
		if _, err := netip.ParsePrefix(s); err != nil {
			return fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		return nil
	}
	if _, err := netip.ParseAddr(s); err != nil {
		return fmt.Errorf("invalid IP address %q: %w", s, err)
	}
	return nil
}
