// This program provides a wallet to sign and submit transactions to a
// crossledger node.
package main

import "github.com/ardanlabs/crossledger/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
