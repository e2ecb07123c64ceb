// Command asyncioctl demonstrates TaskScheduler and IOCore end to end: bind,
// accept, and echo over IOCore, or chain delayed callbacks over
// TaskScheduler. It is ambient tooling, not part of either core package, and
// neither core package imports anything from here.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
