package main

import "docbatch/cmd"

func main() {
	cmd.Execute()
}
