package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Partial failures already reported their per-topic outcomes.
		if errors.Is(err, errPartialFailure) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
