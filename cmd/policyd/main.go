// Command policyd answers Postfix smtpd_access_policy inquiries over TCP
// against an ordered rule set and rate limiters.
package main

import "github.com/sentinelgate/policyd/cmd/policyd/cmd"

func main() {
	cmd.Execute()
}
