package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults builds the defaults table for configuration documents: the
// installer's built-in values, then the deployment's YAML defaults file if
// one is configured. Values from the file win over built-in ones.
func (s *Settings) Defaults() (map[string]any, error) {
	nodeName, err := GenerateNodeName()
	if err != nil {
		return nil, err
	}

	table := map[string]any{
		"features":                 []any{},
		"enablehelp":               true,
		"net":                      "testnet",
		"xpub":                     "",
		"derivation_path":          "0/n",
		"installer_mode":           "docker",
		"devmode":                  false,
		"devregistry":              false,
		"run_as_different_user":    true,
		"username":                 "cyphernode",
		"docker_mode":              "compose",
		"bitcoin_rpcuser":          "bitcoin",
		"bitcoin_rpcpassword":      "CHANGEME",
		"bitcoin_uacomment":        "",
		"bitcoin_prune":            false,
		"bitcoin_prune_size":       550,
		"bitcoin_datapath":         "",
		"bitcoin_node_ip":          "",
		"bitcoin_mode":             "internal",
		"bitcoin_expose":           false,
		"lightning_expose":         true,
		"gatekeeper_port":          2009,
		"gatekeeper_ipwhitelist":   "",
		"gatekeeper_keys":          map[string]any{"configEntries": []any{}, "clientInformation": []any{}},
		"gatekeeper_sslcert":       "",
		"gatekeeper_sslkey":        "",
		"gatekeeper_cns":           s.CertHostname,
		"gatekeeper_datapath":      "",
		"proxy_datapath":           "",
		"lightning_implementation": "c-lightning",
		"lightning_external_ip":    "",
		"lightning_datapath":       "",
		"lightning_nodename":       nodeName,
		"lightning_nodecolor":      "",
		"otsclient_datapath":       "",
		"traefik_datapath":         "",
		"installer_cleanup":        false,
		"default_username":         s.DefaultUser,
	}
	for _, svc := range Services {
		table[svc+"_version"] = s.Versions[svc]
	}

	if s.DefaultsFile == "" {
		return table, nil
	}
	overrides, err := readDefaultsFile(s.DefaultsFile)
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		table[key] = value
	}
	return table, nil
}

func readDefaultsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse defaults file %s: %w", path, err)
	}
	return overrides, nil
}
