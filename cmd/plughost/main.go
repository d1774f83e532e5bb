package main

import "plughost.software/plughost/cmd/plughost/cmd"

func main() {
	cmd.Execute()
}
