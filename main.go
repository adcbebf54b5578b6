package main

import "github.com/ValentinKolb/srvcoord/cmd"

func main() {
	cmd.Execute()
}
