/*
Copyright © 2025 jesse galley <jesse@jessegalley.net>
*/
package main

import "github.com/jessegalley/readbench/cmd"

func main() {
	cmd.Execute()
}
