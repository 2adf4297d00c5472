package main

import "github.com/ValentinKolb/serdata/cmd"

func main() {
	cmd.Execute()
}
