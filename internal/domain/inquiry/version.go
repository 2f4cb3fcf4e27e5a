// Package inquiry holds the version probe and the inquiry log: the record
// of each decision the pipeline has made.
package inquiry

// versionProbes lists the attribute keys checked in order; the first one
// present in the inquiry determines the reported protocol version. Order
// matters and must not be reread as a map.
var versionProbes = []struct {
	key     string
	version string
}{
	{"mail_version", "3.7 or later"},
	{"server_address", "3.2"},
	{"policy_context", "3.1"},
	{"client_port", "3.0"},
	{"ccert_pubkey_fingerprint", "2.9"},
	{"stress", "2.5"},
	{"encryption_protocol", "2.3"},
	{"sasl_method", "2.2"},
}

// DetermineVersion reports the Postfix policy delegation protocol version
// implied by attrs, using the first matching probe in versionProbes. It is
// a pure function with no effect on the verdict; the result is reported to
// observers only.
func DetermineVersion(attrs map[string]string) string {
	for _, p := range versionProbes {
		if _, ok := attrs[p.key]; ok {
			return p.version
		}
	}
	return "2.1 or earlier"
}
