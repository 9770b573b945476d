package main

import "github.com/nick134920/ClaudeFlow/internal/cli"

func main() {
	cli.Execute()
}
