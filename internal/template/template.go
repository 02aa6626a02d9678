// Package template renders vendor-specific RMA request emails. Rendering is
// a pure function over a Case: the same case always yields the same draft
// and no side effects are performed.
package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/returnhub/returnhub/internal/vendors"
)

// ErrValidation marks a case that violates a business rule. Callers must
// not attempt delivery when rendering fails with it.
var ErrValidation = errors.New("validation failed")

// Intent enumerates what the customer wants out of the RMA.
type Intent string

const (
	IntentReturn      Intent = "return"
	IntentRefund      Intent = "refund"
	IntentReplacement Intent = "replacement"
)

// Reason enumerates why the RMA is being filed.
type Reason string

const (
	ReasonDamaged        Reason = "damaged"
	ReasonMissing        Reason = "missing"
	ReasonWrongItem      Reason = "wrong_item"
	ReasonNotAsDescribed Reason = "not_as_described"
	ReasonOther          Reason = "other"
)

var reasonDescriptions = map[Reason]string{
	ReasonDamaged:        "Item arrived damaged or broken",
	ReasonMissing:        "Item was missing from the order",
	ReasonWrongItem:      "Received wrong item",
	ReasonNotAsDescribed: "Item does not match description",
	ReasonOther:          "Other reason not listed",
}

// Case is the extracted return/refund intent handed over by the caller.
type Case struct {
	Vendor       string   `json:"vendor"`
	OrderID      string   `json:"order_id"`
	ItemSKU      string   `json:"item_sku"`
	Intent       Intent   `json:"intent"`
	Reason       Reason   `json:"reason"`
	EvidenceURLs []string `json:"evidence_urls"`
	ContactEmail string   `json:"contact_email,omitempty"`
	ContactPhone string   `json:"contact_phone,omitempty"`
}

// EmailDraft is the rendered email, ready for the notifier.
type EmailDraft struct {
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// evidenceRequired lists reasons for which evidence URLs are mandatory.
func evidenceRequired(r Reason) bool {
	return r == ReasonDamaged || r == ReasonNotAsDescribed
}

// Validate checks the case against the enumerated intents/reasons and the
// evidence business rules without rendering anything.
func Validate(c Case) error {
	switch c.Intent {
	case IntentReturn, IntentRefund, IntentReplacement:
	default:
		return fmt.Errorf("%w: unknown intent %q", ErrValidation, c.Intent)
	}
	if _, ok := reasonDescriptions[c.Reason]; !ok {
		return fmt.Errorf("%w: unknown reason %q", ErrValidation, c.Reason)
	}
	if c.OrderID == "" {
		return fmt.Errorf("%w: order_id is required", ErrValidation)
	}
	if c.ItemSKU == "" {
		return fmt.Errorf("%w: item_sku is required", ErrValidation)
	}
	if evidenceRequired(c.Reason) && len(c.EvidenceURLs) == 0 {
		return fmt.Errorf("%w: reason %q requires evidence_urls", ErrValidation, c.Reason)
	}
	cfg := vendors.Lookup(c.Vendor)
	if len(c.EvidenceURLs) > cfg.MaxEvidenceURLs {
		return fmt.Errorf("%w: too many evidence urls, maximum %d", ErrValidation, cfg.MaxEvidenceURLs)
	}
	for _, u := range c.EvidenceURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%w: invalid evidence url %q", ErrValidation, u)
		}
	}
	return nil
}

// Render produces the vendor-formatted RMA email for the case. It is
// deterministic: equal cases yield byte-identical drafts.
func Render(c Case) (EmailDraft, error) {
	if err := Validate(c); err != nil {
		return EmailDraft{}, err
	}
	cfg := vendors.Lookup(c.Vendor)

	subject := fmt.Sprintf("RMA Request - Order %s - %s", c.OrderID, capitalize(string(c.Intent)))

	var b strings.Builder
	b.WriteString(cfg.Salutation)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "I would like to request a %s for my recent order.\n\n", c.Intent)
	b.WriteString("Order Details:\n")
	fmt.Fprintf(&b, "- Order ID: %s\n", c.OrderID)
	fmt.Fprintf(&b, "- Item SKU: %s\n", c.ItemSKU)
	fmt.Fprintf(&b, "- Reason: %s\n", reasonDescriptions[c.Reason])
	if len(c.EvidenceURLs) > 0 {
		b.WriteString("\nEvidence:\n")
		for i, u := range c.EvidenceURLs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, u)
		}
	}
	b.WriteString("\nPlease let me know the next steps for processing this request.\n\n")
	b.WriteString(cfg.SignOff)
	b.WriteString("\n")
	b.WriteString(contactInfo(c))

	return EmailDraft{
		ToEmail: cfg.SupportEmail,
		Subject: subject,
		Body:    b.String(),
	}, nil
}

func contactInfo(c Case) string {
	if c.ContactEmail != "" {
		return c.ContactEmail
	}
	return "Customer"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
