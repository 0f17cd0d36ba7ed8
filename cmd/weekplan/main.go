// Command weekplan drives a weekly planner from the terminal against a
// running weekplan API.
package main

import "os"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
