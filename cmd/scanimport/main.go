// Command scanimport imports security scanner reports into an asset
// inventory.
//
// Usage:
//
//	scanimport ingest nexpose.xml nuclei.jsonl.gz    # one-shot import
//	scanimport serve --addr :8080                     # HTTP ingest service
//	scanimport formats                                # list report formats
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
