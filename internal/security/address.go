package security

import (
	"context"
	"regexp"
	"strings"

	"github.com/vaultline/vaultline/pkg/models"
)

// addressParamKeys are the parameter names scanned for address values.
var addressParamKeys = []string{
	"to",
	"from",
	"address",
	"wallet",
	"recipient",
	"destination",
	"token_address",
	"tokenAddress",
}

var (
	evmAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

	// Eight or more leading zero nibbles after 0x. Vanity-zero addresses are
	// a common burn/typo destination.
	degenerateZeroRe = regexp.MustCompile(`^0x0{8}`)
)

// AddressCheck screens destination addresses in action parameters against a
// configured blocklist and flags degenerate or malformed values. Malformed
// addresses only warn here; handlers re-validate and fail the action with a
// proper message.
type AddressCheck struct {
	blocklist map[string]bool
}

// NewAddressCheck creates an address check with the given blocklist.
// Matching is case-insensitive.
func NewAddressCheck(blocklist []string) *AddressCheck {
	set := make(map[string]bool, len(blocklist))
	for _, addr := range blocklist {
		set[strings.ToLower(strings.TrimSpace(addr))] = true
	}
	return &AddressCheck{blocklist: set}
}

func (c *AddressCheck) Name() string {
	return "address_screen"
}

func (c *AddressCheck) Evaluate(ctx context.Context, action *models.ParsedAction, turn *TurnContext) Result {
	if action == nil || len(action.Params) == 0 {
		return Clear()
	}

	var warning string
	for _, key := range addressParamKeys {
		raw, ok := action.Params[key]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}

		normalized := strings.ToLower(strings.TrimSpace(value))
		if c.blocklist[normalized] {
			return Block("address " + value + " is blocklisted")
		}

		if !strings.HasPrefix(normalized, "0x") {
			// Could be an ENS name or contact alias; handlers resolve it.
			continue
		}
		if degenerateZeroRe.MatchString(normalized) {
			if warning == "" {
				warning = "address " + value + " looks like a burn address"
			}
			continue
		}
		if !evmAddressRe.MatchString(value) {
			if warning == "" {
				warning = "address " + value + " is not a valid EVM address"
			}
		}
	}

	if warning != "" {
		return Warn(warning)
	}
	return Clear()
}
