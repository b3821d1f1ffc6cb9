package main

import "github.com/inkform/inkform/cmd"

func main() {
	cmd.Execute()
}
