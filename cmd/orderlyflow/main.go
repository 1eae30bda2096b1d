package main

import "orderlyflow/internal/cli"

func main() {
	cli.Execute()
}
