package main

import "hookstorm/cmd"

func main() {
	cmd.Execute()
}
