package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NodeConfig is the closed set of node kinds a pipeline can contain. Each
// variant carries the scan parameters of its node type; the declared
// input/output ports and container image live in the catalog, keyed by
// Type(). Decoding dispatches on the wrapping type-name key and rejects
// unknown tags.
type NodeConfig interface {
	// Type returns the tag this variant is serialized under, e.g. "NmapWorker".
	Type() string
	// Validate checks the scan parameters for this node type.
	Validate() error
}

// Node type tags. These are the only values Type() returns and the only
// wrapping keys the decoder accepts.
const (
	TypeIPAddressTrigger     = "IPAddressTrigger"
	TypeCertstreamTrigger    = "CertstreamTrigger"
	TypeNmapWorker           = "NmapWorker"
	TypeResolverWorker       = "ResolverWorker"
	TypeFFUFWorker           = "FFUFWorker"
	TypeHumbleWorker         = "HumbleWorker"
	TypeScreenshotWorker     = "ScreenshotWorker"
	TypeTestSSLWorker        = "TestSSLWorker"
	TypeWebAppAnalyzerWorker = "WebAppAnalyzerWorker"
)

// newNodeConfig returns a zero value of the variant for tag, or false for an
// unknown tag.
func newNodeConfig(tag string) (NodeConfig, bool) {
	switch tag {
	case TypeIPAddressTrigger:
		return &IPAddressTrigger{}, true
	case TypeCertstreamTrigger:
		return &CertstreamTrigger{}, true
	case TypeNmapWorker:
		return &NmapWorker{}, true
	case TypeResolverWorker:
		return &ResolverWorker{}, true
	case TypeFFUFWorker:
		return &FFUFWorker{}, true
	case TypeHumbleWorker:
		return &HumbleWorker{}, true
	case TypeScreenshotWorker:
		return &ScreenshotWorker{}, true
	case TypeTestSSLWorker:
		return &TestSSLWorker{}, true
	case TypeWebAppAnalyzerWorker:
		return &WebAppAnalyzerWorker{}, true
	}
	return nil, false
}

// TriggerTypes lists the tags that are trigger kinds.
func TriggerTypes() []string {
	return []string{TypeIPAddressTrigger, TypeCertstreamTrigger}
}

// WorkerTypes lists the tags that are worker kinds.
func WorkerTypes() []string {
	return []string{
		TypeNmapWorker, TypeResolverWorker, TypeFFUFWorker, TypeHumbleWorker,
		TypeScreenshotWorker, TypeTestSSLWorker, TypeWebAppAnalyzerWorker,
	}
}

// IsTriggerType reports whether tag names a trigger kind.
func IsTriggerType(tag string) bool {
	return tag == TypeIPAddressTrigger || tag == TypeCertstreamTrigger
}

// IPAddressTrigger starts a run from a fixed list of IP addresses or CIDR
// networks, optionally repeating on an interval.
type IPAddressTrigger struct {
	IPAddresses []string `json:"ip_addresses"`
	// Repetition is the interval in seconds between repeated firings.
	// Zero means fire once.
	Repetition int `json:"repetition,omitempty"`
}

func (t *IPAddressTrigger) Type() string { return TypeIPAddressTrigger }

func (t *IPAddressTrigger) Validate() error {
	if len(t.IPAddresses) == 0 {
		return fmt.Errorf("at least one IP address or network is required")
	}
	if len(t.IPAddresses) > 10000 {
		return fmt.Errorf("maximum 10000 IP addresses/networks allowed")
	}
	for _, ip := range t.IPAddresses {
		if err := validateAddrOrCIDR(ip); err != nil {
			return err
		}
	}
	if t.Repetition != 0 && (t.Repetition < 60 || t.Repetition > 86400*30) {
		return fmt.Errorf("repetition must be between 60s and 30 days")
	}
	return nil
}

// CertstreamTrigger watches certificate transparency logs and fires on
// certificates whose names match a regex.
type CertstreamTrigger struct {
	Regex string `json:"regex"`
}

func (t *CertstreamTrigger) Type() string { return TypeCertstreamTrigger }

func (t *CertstreamTrigger) Validate() error {
	if t.Regex == "" {
		return fmt.Errorf("regex cannot be empty")
	}
	if len(t.Regex) > 1000 {
		return fmt.Errorf("regex cannot exceed 1000 characters")
	}
	if _, err := regexp.Compile(t.Regex); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

// NmapWorker port-scans IP targets. CustomCommand, when set, replaces Ports
// and Arguments entirely.
type NmapWorker struct {
	Ports         string `json:"ports,omitempty"`
	Arguments     string `json:"arguments,omitempty"`
	CustomCommand string `json:"custom_command,omitempty"`
}

func (w *NmapWorker) Type() string { return TypeNmapWorker }

func (w *NmapWorker) Validate() error {
	if w.Ports != "" {
		if err := validatePortSpec(w.Ports); err != nil {
			return err
		}
	}
	if err := validateNmapArguments(w.Arguments); err != nil {
		return err
	}
	return validateCustomNmapCommand(w.CustomCommand)
}

// ResolverWorker resolves domain names from HTTP targets into IP targets.
type ResolverWorker struct {
	UseInternal bool `json:"use_internal,omitempty"`
}

func (w *ResolverWorker) Type() string    { return TypeResolverWorker }
func (w *ResolverWorker) Validate() error { return nil }

// FFUFWorker fuzzes HTTP endpoints for hidden paths and files.
type FFUFWorker struct {
	Wordlist   string `json:"wordlist,omitempty"`
	Extensions string `json:"extensions,omitempty"`
	Recursive  bool   `json:"recursive,omitempty"`
}

func (w *FFUFWorker) Type() string { return TypeFFUFWorker }

func (w *FFUFWorker) Validate() error {
	if w.Wordlist != "" {
		if err := validateWordlistPath(w.Wordlist); err != nil {
			return err
		}
	}
	return validateExtensions(w.Extensions)
}

// HumbleWorker analyzes HTTP security headers.
type HumbleWorker struct{}

func (w *HumbleWorker) Type() string    { return TypeHumbleWorker }
func (w *HumbleWorker) Validate() error { return nil }

// ScreenshotWorker captures rendered screenshots of HTTP targets.
type ScreenshotWorker struct {
	Resolution string `json:"resolution,omitempty"`
}

func (w *ScreenshotWorker) Type() string { return TypeScreenshotWorker }

func (w *ScreenshotWorker) Validate() error {
	if w.Resolution == "" {
		return nil
	}
	return validateResolution(w.Resolution)
}

// TestSSLWorker checks TLS configuration and known vulnerabilities.
type TestSSLWorker struct{}

func (w *TestSSLWorker) Type() string    { return TypeTestSSLWorker }
func (w *TestSSLWorker) Validate() error { return nil }

// WebAppAnalyzerWorker fingerprints web technologies on HTTP targets.
type WebAppAnalyzerWorker struct{}

func (w *WebAppAnalyzerWorker) Type() string    { return TypeWebAppAnalyzerWorker }
func (w *WebAppAnalyzerWorker) Validate() error { return nil }

var resolutionPattern = regexp.MustCompile(`^\d{3,5}x\d{3,5}$`)

// shellMetaChars are rejected anywhere scan parameters end up on a command
// line inside the scan container.
const shellMetaChars = ";&|$`(){}<>\n\r"

// validatePortSpec accepts nmap-style port specifications: "-p-",
// "-p80,443,8000-9000" or "--top-ports N".
func validatePortSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return fmt.Errorf("ports cannot be empty")
	}
	if spec == "-p-" {
		return nil
	}
	if rest, ok := strings.CutPrefix(spec, "--top-ports"); ok {
		n := strings.TrimSpace(rest)
		if _, err := strconv.Atoi(n); err != nil || n == "" {
			return fmt.Errorf("ports: invalid --top-ports format")
		}
		return nil
	}
	rest, ok := strings.CutPrefix(spec, "-p")
	if !ok {
		return fmt.Errorf("ports: must start with -p or --top-ports")
	}
	for _, part := range strings.Split(rest, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			hi = lo
		}
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil {
			return fmt.Errorf("ports: invalid port %q", part)
		}
		if a > b {
			return fmt.Errorf("ports: invalid range %s", part)
		}
		if b > 65535 {
			return fmt.Errorf("ports: port %d exceeds 65535", b)
		}
	}
	return nil
}

func validateNmapArguments(args string) error {
	if args == "" {
		return nil
	}
	blocked := []string{"--script-args-file", "--datadir", "-iL", "-oN", "-oX", "-oG", "-oA", "--resume"}
	lower := strings.ToLower(args)
	for _, opt := range blocked {
		if strings.Contains(lower, strings.ToLower(opt)) {
			return fmt.Errorf("arguments: option %q is not allowed", opt)
		}
	}
	if i := strings.IndexAny(args, shellMetaChars); i >= 0 {
		return fmt.Errorf("arguments: character %q is not allowed", args[i])
	}
	return nil
}

func validateCustomNmapCommand(cmd string) error {
	if cmd == "" {
		return nil
	}
	if !strings.HasPrefix(cmd, "nmap ") {
		return fmt.Errorf("custom_command must start with \"nmap \"")
	}
	if !strings.Contains(cmd, "{{target}}") {
		return fmt.Errorf("custom_command must contain the {{target}} placeholder")
	}
	if !strings.Contains(cmd, "-oX -") {
		return fmt.Errorf("custom_command must include \"-oX -\" for XML output to stdout")
	}
	stripped := strings.ReplaceAll(cmd, "{{target}}", "")
	if i := strings.IndexAny(stripped, shellMetaChars); i >= 0 {
		return fmt.Errorf("custom_command: character %q is not allowed", stripped[i])
	}
	return nil
}

func validateWordlistPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("wordlist must be an absolute path")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("wordlist cannot contain \"..\"")
	}
	if i := strings.IndexAny(path, shellMetaChars); i >= 0 {
		return fmt.Errorf("wordlist cannot contain %q", path[i])
	}
	return nil
}

func validateExtensions(exts string) error {
	if exts == "" {
		return nil
	}
	for _, ext := range strings.Split(exts, ",") {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if len(ext) > 10 {
			return fmt.Errorf("extensions: %q is too long", ext)
		}
		for _, r := range ext {
			if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
				return fmt.Errorf("extensions: %q contains invalid characters", ext)
			}
		}
	}
	return nil
}

func validateResolution(res string) error {
	if !resolutionPattern.MatchString(res) {
		return fmt.Errorf("resolution must be WIDTHxHEIGHT, e.g. 1920x1080")
	}
	wh := strings.SplitN(res, "x", 2)
	w, _ := strconv.Atoi(wh[0])
	h, _ := strconv.Atoi(wh[1])
	if w < 100 || h < 100 {
		return fmt.Errorf("resolution: minimum is 100x100")
	}
	if w > 7680 || h > 4320 {
		return fmt.Errorf("resolution: maximum is 7680x4320")
	}
	return nil
}
