// Command configlint validates the on-chain rules registry file the way
// original_source/scripts/config_lint.py validates rules/*.yml: load,
// validate, report, and exit 0/1/2.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain/rules"
)

func main() {
	path := flag.String("rules", "", "path to the on-chain rules JSON file")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: configlint -rules <path>")
		os.Exit(2)
	}

	reg, err := rules.NewRegistry(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	current := reg.Current()
	fmt.Printf("OK: %s loads and validates (%d upgrade, %d downgrade conditions)\n", *path, len(current.Verdict.UpgradeIf), len(current.Verdict.DowngradeIf))
	os.Exit(0)
}
