package main

import "github.com/MeKo-Tech/docscan/cmd/docscan/cmd"

func main() {
	cmd.Execute()
}
