package config

// ConflictRule enforces one cross-field business rule the schema cannot
// express. Apply must be idempotent and must only touch the fields the rule
// is about.
type ConflictRule struct {
	Name  string
	Apply func(Document)
}

// DefaultConflictRules is the rule set a Store uses when none is configured.
var DefaultConflictRules = []ConflictRule{
	LightningDisablesPrune,
	ExternalBitcoinUnexposed,
	DevRegistryRequiresDevMode,
}

// LightningDisablesPrune: the lightning daemon needs the full block chain,
// so enabling the lightning feature turns pruning off and drops the prune
// size.
var LightningDisablesPrune = ConflictRule{
	Name: "lightning-disables-prune",
	Apply: func(doc Document) {
		if !hasFeature(doc, "lightning") {
			return
		}
		doc["bitcoin_prune"] = false
		delete(doc, "bitcoin_prune_size")
	},
}

// ExternalBitcoinUnexposed: an external bitcoin node is not managed by the
// stack, so its ports are never exposed by it.
var ExternalBitcoinUnexposed = ConflictRule{
	Name: "external-bitcoin-unexposed",
	Apply: func(doc Document) {
		if mode, _ := doc["bitcoin_mode"].(string); mode != "external" {
			return
		}
		doc["bitcoin_expose"] = false
	},
}

// DevRegistryRequiresDevMode: the local image registry only exists in
// development setups.
var DevRegistryRequiresDevMode = ConflictRule{
	Name: "devregistry-requires-devmode",
	Apply: func(doc Document) {
		if _, ok := doc["devregistry"]; !ok {
			return
		}
		if truthy(doc["devmode"]) {
			return
		}
		doc["devregistry"] = false
	},
}

func hasFeature(doc Document, name string) bool {
	switch features := doc["features"].(type) {
	case []any:
		for _, f := range features {
			if s, ok := f.(string); ok && s == name {
				return true
			}
		}
	case []string:
		for _, f := range features {
			if f == name {
				return true
			}
		}
	case string:
		return features == name
	}
	return false
}

// truthy reads a boolean the way schema coercion will, since rules also run
// before the document has been normalized.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	case float64:
		return b == 1
	}
	return false
}

func applyRules(doc Document, rules []ConflictRule) {
	for _, rule := range rules {
		rule.Apply(doc)
	}
}
