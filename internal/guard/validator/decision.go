package validator

// Reason is a stable decision category. Callers and tests branch on these
// values, never on free text, so they must not change between releases.
type Reason string

const (
	ReasonMalformedURL                Reason = "malformed_url"
	ReasonDisallowedProtocol          Reason = "disallowed_protocol"
	ReasonBlockedHostnamePattern      Reason = "blocked_hostname_pattern"
	ReasonPrivateOrReservedIP         Reason = "private_or_reserved_ip_address"
	ReasonDNSResolutionFailure        Reason = "dns_resolution_failure"
	ReasonHostnameResolvesToPrivateIP Reason = "hostname_resolves_to_private_ip"
	ReasonInternalError               Reason = "internal_error"
)

// Decision is the single artifact the validator returns. It is created fresh
// per call and carries no state beyond the call.
//
// When Safe is true, NormalizedURL holds the canonical URL the caller must
// fetch instead of the raw input. When Safe is false, Reason holds the
// category and Detail a short human-readable specifics string.
type Decision struct {
	Safe          bool   `json:"safe"`
	Reason        Reason `json:"reason,omitempty"`
	Detail        string `json:"detail,omitempty"`
	NormalizedURL string `json:"normalized_url,omitempty"`
}

// Message renders the blocking reason for caller-facing error text
func (d Decision) Message() string {
	if d.Safe {
		return ""
	}
	if d.Detail != "" {
		return string(d.Reason) + ": " + d.Detail
	}
	return string(d.Reason)
}

func blocked(reason Reason, detail string) Decision {
	return Decision{Safe: false, Reason: reason, Detail: detail}
}

func safe(normalizedURL string) Decision {
	return Decision{Safe: true, NormalizedURL: normalizedURL}
}
