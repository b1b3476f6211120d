package main

import cli "blockidx/dbcli"

func main() {
	cli.Execute()
}
