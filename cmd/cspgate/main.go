package main

import "github.com/Haserjian/csp-tool-safety-profile/internal/cli"

func main() {
	cli.Execute()
}
