package catalog

import "github.com/portwhine/portwhine/internal/model"

// Builtin returns the registry of node types shipped with the engine. The
// image tags follow the scan module build, one image per node type.
func Builtin() *Registry {
	r, err := NewRegistry(
		NodeDefinition{
			Name:        model.TypeIPAddressTrigger,
			Kind:        model.KindTrigger,
			DisplayName: "IP Address Trigger",
			Description: "Starts the pipeline with a fixed list of IP addresses or networks, optionally on a repeat interval.",
			Outputs:     []model.PortType{model.PortIP},
			Image:       "ipaddress:1.0",
			Fields: []FieldDefinition{
				{Name: "ip_addresses", Label: "Ip Addresses", Type: "ip_list", Required: true,
					Description: "List of IP addresses or CIDR networks to trigger"},
				{Name: "repetition", Label: "Repetition", Type: "integer",
					Description: "Interval in seconds between repeated triggers (60s - 30 days, empty = once)"},
			},
		},
		NodeDefinition{
			Name:        model.TypeCertstreamTrigger,
			Kind:        model.KindTrigger,
			DisplayName: "Certstream Trigger",
			Description: "Watches certificate transparency logs and fires on certificates matching a regex.",
			Outputs:     []model.PortType{model.PortHTTP},
			Image:       "certstream:1.0",
			Fields: []FieldDefinition{
				{Name: "regex", Label: "Regex", Type: "regex", Required: true,
					Description: "Pattern matched against certificate common names and SANs"},
			},
		},
		NodeDefinition{
			Name:        model.TypeNmapWorker,
			Kind:        model.KindWorker,
			DisplayName: "Nmap Scanner",
			Category:    model.CategoryScanner,
			Description: "Discovers open ports and services on IP targets; emits both IP and HTTP targets.",
			Inputs:      []model.PortType{model.PortIP},
			Outputs:     []model.PortType{model.PortIP, model.PortHTTP},
			Image:       "nmap:1.0",
			Fields: []FieldDefinition{
				{Name: "ports", Label: "Ports", Type: "port_range", Default: "-p-",
					Description: "Port specification, e.g. '-p-' or '-p1-1000'"},
				{Name: "arguments", Label: "Arguments", Type: "string", Default: "-A",
					Description: "Additional nmap arguments"},
				{Name: "custom_command", Label: "Custom Command", Type: "string",
					Description: "Full nmap command with {{target}} placeholder; must write XML to stdout"},
			},
		},
		NodeDefinition{
			Name:        model.TypeResolverWorker,
			Kind:        model.KindWorker,
			DisplayName: "DNS Resolver",
			Category:    model.CategoryUtility,
			Description: "Resolves domain names from HTTP targets into IP targets.",
			Inputs:      []model.PortType{model.PortHTTP},
			Outputs:     []model.PortType{model.PortIP},
			Image:       "resolver:1.0",
			Fields: []FieldDefinition{
				{Name: "use_internal", Label: "Use Internal", Type: "boolean", Default: false,
					Description: "Use the internal DNS resolver instead of the system default"},
			},
		},
		NodeDefinition{
			Name:        model.TypeFFUFWorker,
			Kind:        model.KindWorker,
			DisplayName: "FFUF Fuzzer",
			Category:    model.CategoryScanner,
			Description: "Fuzzes HTTP endpoints for hidden paths and files using wordlists.",
			Inputs:      []model.PortType{model.PortHTTP},
			Outputs:     []model.PortType{model.PortHTTP},
			Image:       "ffuf:1.0",
			Fields: []FieldDefinition{
				{Name: "wordlist", Label: "Wordlist", Type: "string", Default: "/usr/share/wordlists/common.txt",
					Description: "Path to the wordlist inside the container"},
				{Name: "extensions", Label: "Extensions", Type: "string",
					Description: "Comma-separated file extensions to fuzz, e.g. 'php,html,js'"},
				{Name: "recursive", Label: "Recursive", Type: "boolean", Default: false,
					Description: "Recurse into discovered directories"},
			},
		},
		NodeDefinition{
			Name:        model.TypeHumbleWorker,
			Kind:        model.KindWorker,
			DisplayName: "Humble Header Analyzer",
			Category:    model.CategoryAnalyzer,
			Description: "Checks HTTP responses for missing or misconfigured security headers.",
			Inputs:      []model.PortType{model.PortIP},
			Outputs:     []model.PortType{model.PortIP},
			Image:       "humble:1.0",
		},
		NodeDefinition{
			Name:        model.TypeScreenshotWorker,
			Kind:        model.KindWorker,
			DisplayName: "Screenshot",
			Category:    model.CategoryUtility,
			Description: "Captures rendered screenshots of HTTP targets with a headless browser.",
			Inputs:      []model.PortType{model.PortHTTP},
			Outputs:     []model.PortType{model.PortHTTP},
			Image:       "screenshot:1.0",
			Fields: []FieldDefinition{
				{Name: "resolution", Label: "Resolution", Type: "string", Default: "1920x1080",
					Description: "Capture resolution as WIDTHxHEIGHT"},
			},
		},
		NodeDefinition{
			Name:        model.TypeTestSSLWorker,
			Kind:        model.KindWorker,
			DisplayName: "TestSSL Analyzer",
			Category:    model.CategoryAnalyzer,
			Description: "Analyzes TLS configuration, certificates and known vulnerabilities.",
			Inputs:      []model.PortType{model.PortIP},
			Outputs:     []model.PortType{model.PortIP},
			Image:       "testssl:1.0",
		},
		NodeDefinition{
			Name:        model.TypeWebAppAnalyzerWorker,
			Kind:        model.KindWorker,
			DisplayName: "Web App Analyzer",
			Category:    model.CategoryAnalyzer,
			Description: "Fingerprints CMS, frameworks and libraries on HTTP targets.",
			Inputs:      []model.PortType{model.PortHTTP},
			Outputs:     []model.PortType{model.PortHTTP},
			Image:       "webappanalyzer:1.0",
		},
	)
	if err != nil {
		// The builtin catalog is static; a construction error is a
		// programming mistake.
		panic(err)
	}
	return r
}
