package main

import (
	"wager-rewards/internal/cli"
)

func main() {
	cli.Execute()
}
