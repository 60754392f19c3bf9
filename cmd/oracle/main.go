package main

import "github.com/vietddude/mint-oracle/internal/cli"

func main() {
	cli.Execute()
}
