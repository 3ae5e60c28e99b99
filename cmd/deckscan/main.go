package main

import "github.com/MeKo-Tech/deckscan/cmd/deckscan/cmd"

func main() {
	cmd.Execute()
}
