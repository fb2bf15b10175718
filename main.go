package main

import "ragtune/cmd"

func main() {
	cmd.Execute()
}
