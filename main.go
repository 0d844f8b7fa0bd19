/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "lineecho/cmd"

func main() {
	cmd.Execute()
}
