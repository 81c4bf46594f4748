package main

import "liquidity-alerts/internal/cli"

func main() {
	cli.Execute()
}
