package vendors

import (
	"errors"
	"strings"
)

// ErrPolicyNotFound indicates the requested policy key does not exist for the vendor.
var ErrPolicyNotFound = errors.New("policy not found")

// Config describes how RMA requests are handled for one vendor.
type Config struct {
	Name             string
	SupportEmail     string
	Salutation       string
	SignOff          string
	RequiresEvidence bool
	MaxEvidenceURLs  int
	Policies         map[string]string
}

// Generic is the fallback key used when a vendor is unknown.
const Generic = "generic"

var configs = map[string]Config{
	"amazon": {
		Name:             "Amazon",
		SupportEmail:     "returns@amazon.com",
		Salutation:       "Dear Amazon Customer Service,",
		SignOff:          "Best regards,",
		RequiresEvidence: true,
		MaxEvidenceURLs:  3,
		Policies: map[string]string{
			"return_window": "30-day return window",
			"refund_method": "refund to original payment method",
			"shipping":      "free return shipping label",
			"condition":     "item must be in original packaging",
		},
	},
	"walmart": {
		Name:            "Walmart",
		SupportEmail:    "customer.service@walmart.com",
		Salutation:      "Dear Walmart Customer Service,",
		SignOff:         "Thank you,",
		MaxEvidenceURLs: 5,
		Policies: map[string]string{
			"return_window": "90-day return window",
			"refund_method": "refund to original payment method or gift card",
			"shipping":      "free in-store returns",
			"condition":     "item must be unused",
		},
	},
	"target": {
		Name:             "Target",
		SupportEmail:     "guest.service@target.com",
		Salutation:       "Dear Target Guest Services,",
		SignOff:          "Sincerely,",
		RequiresEvidence: true,
		MaxEvidenceURLs:  4,
		Policies: map[string]string{
			"return_window": "90-day return window",
			"refund_method": "refund to original payment method",
			"shipping":      "free return shipping label",
			"condition":     "item must be in original packaging",
		},
	},
	"bestbuy": {
		Name:             "Best Buy",
		SupportEmail:     "customer.service@bestbuy.com",
		Salutation:       "Dear Best Buy Customer Service,",
		SignOff:          "Best regards,",
		RequiresEvidence: true,
		MaxEvidenceURLs:  3,
		Policies: map[string]string{
			"return_window": "15-day return window",
			"refund_method": "refund to original payment method",
			"shipping":      "free in-store returns",
			"condition":     "item must include original packaging and accessories",
		},
	},
	Generic: {
		Name:            "Generic Vendor",
		SupportEmail:    "support@vendor.com",
		Salutation:      "Dear Customer Service,",
		SignOff:         "Thank you,",
		MaxEvidenceURLs: 5,
		Policies: map[string]string{
			"return_window": "30-day return window",
			"refund_method": "refund to original payment method",
			"shipping":      "contact support for a return label",
			"condition":     "item must be in original packaging",
		},
	},
}

// Lookup resolves a vendor name to its configuration. Matching is
// case-insensitive and tolerates partial names ("amazon.com" -> amazon).
// Unknown vendors resolve to the generic configuration.
func Lookup(vendor string) Config {
	key := strings.ToLower(strings.TrimSpace(vendor))
	if cfg, ok := configs[key]; ok {
		return cfg
	}
	if key != "" {
		for _, name := range Supported() {
			if name == Generic {
				continue
			}
			if strings.Contains(key, name) || strings.Contains(name, key) {
				return configs[name]
			}
		}
	}
	return configs[Generic]
}

// Known reports whether the vendor resolves to a dedicated (non-generic) configuration.
func Known(vendor string) bool {
	key := strings.ToLower(strings.TrimSpace(vendor))
	_, ok := configs[key]
	return ok
}

// Supported returns the list of vendor keys with dedicated configurations.
func Supported() []string {
	return []string{"amazon", "walmart", "target", "bestbuy", Generic}
}

// Policy returns policy snippets for a vendor. With an empty key the full
// mapping is returned (copied, callers may mutate). With a key, the result
// contains that single entry or ErrPolicyNotFound.
func Policy(vendor, key string) (map[string]string, error) {
	cfg := Lookup(vendor)
	if key == "" {
		out := make(map[string]string, len(cfg.Policies))
		for k, v := range cfg.Policies {
			out[k] = v
		}
		return out, nil
	}
	v, ok := cfg.Policies[key]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return map[string]string{key: v}, nil
}
