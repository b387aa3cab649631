package main

import "link-porter/cmd"

func main() {
	cmd.Execute()
}
