package main

import "github.com/kamusis/catsdogs/cmd"

func main() {
	cmd.Execute()
}
