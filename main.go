package main

import "github.com/ayaseen/rhacs-runner/cmd"

func main() {
	cmd.Execute()
}
